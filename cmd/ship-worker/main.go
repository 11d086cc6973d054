package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("ship-worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunShipWorker(ctx, cfg, log, os.Getenv("workerSwaggerPath"), defaultWorkerFactories())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ship-worker stopped", zap.Error(err))
		panic(err)
	}
}
