package main

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/bootstrap"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/services/poller"
	"github.com/BearBump/ShipBox/internal/services/tracking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type workerStore interface {
	tracking.Repository
	tracking.CheckRecorder
	poller.Source
	Ping(ctx context.Context) error
}

type workerFactories struct {
	newStorage       func(ctx context.Context, cfg *config.Config) (st workerStore, closeFn func(), err error)
	newRedis         func(cfg *config.Config) *redis.Client
	newPublisher     func(cfg *config.Config) (tracking.Publisher, func())
	newCarrierClient func(cfg *config.Config) (carrier.Client, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (workerStore, func(), error) {
			st, err := bootstrap.OpenPostgres(ctx, cfg.Database.DSN(), 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newRedis: func(cfg *config.Config) *redis.Client {
			return bootstrap.Redis(cfg.Redis)
		},
		newPublisher: func(cfg *config.Config) (tracking.Publisher, func()) {
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
		newCarrierClient: func(cfg *config.Config) (carrier.Client, error) {
			return bootstrap.Carrier(cfg.Carrier)
		},
	}
}

func RunShipWorker(ctx context.Context, cfg *config.Config, log *zap.Logger, swaggerPath string, f workerFactories) error {
	cc, err := f.newCarrierClient(cfg)
	if err != nil {
		return err
	}
	st, closeFn, err := f.newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	var rdb *redis.Client
	if f.newRedis != nil {
		if rdb = f.newRedis(cfg); rdb != nil {
			defer func() { _ = rdb.Close() }()
		}
	}
	var pub tracking.Publisher
	if f.newPublisher != nil {
		var closePub func()
		pub, closePub = f.newPublisher(cfg)
		if closePub != nil {
			defer closePub()
		}
	}

	svc := bootstrap.Tracking(cfg, cc, st, rdb, pub, log.Named("tracking"))
	p := poller.New(st, svc, log.Named("poller")).
		WithPlanner(bootstrap.PlannerConfig(cfg)).
		WithSettings(0, cfg.ShipBox.WorkerBatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(ctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.ShipBox.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			poller:      p,
			cfg:         cfg,
			ready:       st.Ping,
			log:         log,
		})
	})
	return g.Wait()
}
