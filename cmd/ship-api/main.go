package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	app := mustBootstrapShipAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		app.log.Error("ship-api stopped", zap.Error(err))
		panic(err)
	}
}
