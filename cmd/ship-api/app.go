package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	ordersapi "github.com/BearBump/ShipBox/internal/api/orders_api"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type shipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	// retries of a transient carrier failure before the consumer gives up
	createAttempts int
	retryDelay     time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type shipmentCreator interface {
	CreateShipmentByID(ctx context.Context, orderID string) (shipments.ShipmentRef, error)
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, api *ordersapi.OrdersAPI, creator shipmentCreator, consumer kafkaConsumer, ready func(context.Context) error, log *zap.Logger) error {
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(ctx, lis, newRouter(opts, api, ready, log), log)
	})
	if consumer != nil {
		g.Go(func() error {
			log.Info("kafka consumer started", zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup))
			err := consumer.Consume(ctx, orderConfirmedHandler(creator, opts, log))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The uncommitted message is redelivered after a restart.
			return errors.Wrap(err, "order.confirmed consumer stopped")
		})
	}
	return g.Wait()
}

func newRouter(opts shipAPIOpts, api *ordersapi.OrdersAPI, ready func(context.Context) error, log *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	}

	api.Register(r)
	return r
}

func serveHTTP(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// orderConfirmedHandler creates the shipment for a confirmed order. Only
// failures that happen before CreateOrder reaches the carrier are retried.
// Once the order was sent it is never sent again: a lost answer is logged
// for manual reconciliation and the message is acknowledged. Everything else
// is acknowledged too, an operator can retry through the REST API.
func orderConfirmedHandler(creator shipmentCreator, opts shipAPIOpts, log *zap.Logger) kafka.Handler {
	attempts := opts.createAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return func(ctx context.Context, key, value []byte) error {
		var m messages.OrderConfirmed
		if err := json.Unmarshal(value, &m); err != nil || m.OrderID == "" {
			log.Warn("skip malformed order.confirmed", zap.ByteString("key", key), zap.Error(err))
			return nil
		}

		var err error
		for i := 0; i < attempts; i++ {
			var ref shipments.ShipmentRef
			ref, err = creator.CreateShipmentByID(ctx, m.OrderID)
			if err == nil {
				log.Info("shipment ready",
					zap.String("order_id", m.OrderID),
					zap.String("carrier_order_id", ref.CarrierOrderID),
					zap.String("carrier_shipment_id", ref.CarrierShipmentID))
				return nil
			}
			if shipments.IsOutcomeUnknown(err) {
				log.Error("shipment creation outcome unknown, check the carrier before retrying",
					zap.String("order_id", m.OrderID), zap.Error(err))
				return nil
			}
			if !retryable(err) {
				log.Warn("shipment not created", zap.String("order_id", m.OrderID), zap.Error(err))
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.retryDelay * time.Duration(i+1)):
			}
		}
		log.Error("carrier unavailable, giving up on message", zap.String("order_id", m.OrderID), zap.Error(err))
		return err
	}
}

// retryable is true only for failures that leave the carrier untouched.
func retryable(err error) bool {
	if shipments.IsOutcomeUnknown(err) {
		return false
	}
	if errors.Is(err, models.ErrOrderNotFound) || errors.Is(err, shipments.ErrOrderCancelled) {
		return false
	}
	return carrier.IsUnavailable(err) || errors.Is(err, shipments.ErrCreationInProgress)
}
