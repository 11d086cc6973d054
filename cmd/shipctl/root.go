package main

import (
	"context"
	"os"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/bootstrap"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type tracker interface {
	TrackOne(ctx context.Context, shipmentID string) []models.TrackingEvent
	TrackMany(ctx context.Context, orderIDs []string) map[string][]models.TrackingEvent
}

type shipper interface {
	CreateShipmentByID(ctx context.Context, orderID string) (shipments.ShipmentRef, error)
	CancelOrder(ctx context.Context, orderID string) (shipments.CancelResult, error)
}

type deps struct {
	tracking  tracker
	shipments shipper
	close     func()
}

type depsFactory func(ctx context.Context, configPath string) (*deps, error)

// defaultDeps wires the real services. Kafka is left out: the CLI is an
// operator tool and status events are the services' business.
func defaultDeps(ctx context.Context, configPath string) (*deps, error) {
	if configPath == "" {
		return nil, errors.New("config path is required (--config or configPath env)")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(bootstrap.Or(cfg.Log.Level, "warn"), "console").Named("shipctl")

	c, err := bootstrap.Carrier(cfg.Carrier)
	if err != nil {
		return nil, err
	}
	st, err := bootstrap.OpenPostgres(ctx, cfg.Database.DSN(), 0)
	if err != nil {
		return nil, err
	}
	rdb := bootstrap.Redis(cfg.Redis)

	sh, err := bootstrap.Shipments(cfg, c, st, rdb, nil, log)
	if err != nil {
		st.Close()
		_ = rdb.Close()
		return nil, err
	}
	return &deps{
		tracking:  bootstrap.Tracking(cfg, c, st, rdb, nil, log),
		shipments: sh,
		close: func() {
			_ = rdb.Close()
			st.Close()
			_ = log.Sync()
		},
	}, nil
}

func newRootCmd(factory depsFactory) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "shipctl",
		Short:         "Operate ShipBox shipments from the terminal",
		Long:          "shipctl creates, cancels and reconciles carrier shipments using the same services as ship-api.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("configPath"), "Path to the YAML config")

	open := func(cmd *cobra.Command) (*deps, error) {
		return factory(cmd.Context(), configPath)
	}
	cmd.AddCommand(newTrackCmd(open))
	cmd.AddCommand(newReconcileCmd(open))
	cmd.AddCommand(newShipCmd(open))
	cmd.AddCommand(newCancelCmd(open))
	return cmd
}
