package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipBox/config"
	ordersapi "github.com/BearBump/ShipBox/internal/api/orders_api"
	"github.com/BearBump/ShipBox/internal/bootstrap"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/BearBump/ShipBox/internal/services/orders"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type shipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shipAPIOpts
	log      *zap.Logger
	api      *ordersapi.OrdersAPI
	creator  *shipments.Service
	consumer *kafka.Consumer
	ready    func(context.Context) error
	closers  []func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("ship-api")

	carrierClient, err := bootstrap.Carrier(cfg.Carrier)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := bootstrap.OpenPostgres(ctx, cfg.Database.DSN(), 60*time.Second)
	if err != nil {
		cancel()
		panic(err)
	}
	rdb := bootstrap.Redis(cfg.Redis)
	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	trackingSvc := bootstrap.Tracking(cfg, carrierClient, st, rdb, producer, log.Named("tracking"))
	shipmentSvc, err := bootstrap.Shipments(cfg, carrierClient, st, rdb, producer, log.Named("shipments"))
	if err != nil {
		cancel()
		panic(err)
	}
	ordersSvc := orders.New(st, producer, log.Named("orders"))

	topic := bootstrap.Or(cfg.Kafka.OrderConfirmedTopicName, messages.TopicOrderConfirmed)
	group := bootstrap.Or(cfg.ShipBox.KafkaConsumerGroup, "ship-api")
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr:       bootstrap.Or(cfg.ShipBox.HTTPAddr, ":8080"),
			swaggerPath:    os.Getenv("swaggerPath"),
			topic:          topic,
			consumerGroup:  group,
			createAttempts: 3,
			retryDelay:     2 * time.Second,
		},
		log:      log,
		api:      ordersapi.New(shipmentSvc, trackingSvc, ordersSvc, log.Named("api")),
		creator:  shipmentSvc,
		consumer: consumer,
		ready:    readiness(st.Ping, rdb),
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
			func() { _ = rdb.Close() },
			st.Close,
		},
	}
}

func readiness(pingDB func(context.Context) error, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pingDB(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
	_ = a.log.Sync()
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.api, a.creator, a.consumer, a.ready, a.log)
}
