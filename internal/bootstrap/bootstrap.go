// Package bootstrap turns the YAML config into wired services. The binaries
// under cmd/ share it so that defaults live in one place.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/carrierhttp"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipBox/internal/services/poller"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/BearBump/ShipBox/internal/services/tracking"
	"github.com/BearBump/ShipBox/internal/storage/pgorders"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultCacheTTL       = 5 * time.Minute
	DefaultRatePerMinute  = 60
	DefaultCarrierTimeout = 10 * time.Second
)

// Seconds converts a config value, falling back to def when it is unset.
func Seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func Or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Carrier picks the carrier client. The in-process fake is used only when
// asked for explicitly: it hands out made-up shipment ids.
func Carrier(cfg config.CarrierConfig) (carrier.Client, error) {
	switch cfg.Mode {
	case "fake":
		return fake.New(), nil
	case "", "http":
	default:
		return nil, errors.Errorf("carrier.mode %q: want http or fake", cfg.Mode)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("carrier.base_url is required unless carrier.mode is fake")
	}
	return carrierhttp.New(cfg.BaseURL, cfg.Email, cfg.Password, Seconds(cfg.TimeoutSeconds, DefaultCarrierTimeout)), nil
}

// OpenPostgres retries until the database accepts connections or wait runs
// out. Postgres from docker compose is usually not ready at process start.
func OpenPostgres(ctx context.Context, dsn string, wait time.Duration) (*pgorders.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgorders.New(dsn)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func Redis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr()})
}

// PlannerConfig maps the worker settings; zero values take the planner
// defaults.
func PlannerConfig(cfg *config.Config) poller.PlannerConfig {
	sb := cfg.ShipBox
	return poller.PlannerConfig{
		Interval: Seconds(sb.WorkerPollIntervalSeconds, 0),
		Jitter:   Seconds(sb.WorkerPollJitterSeconds, 0),
		Backoff1: Seconds(sb.WorkerBackoff1Seconds, 0),
		Backoff2: Seconds(sb.WorkerBackoff2Seconds, 0),
		Backoff3: Seconds(sb.WorkerBackoff3Seconds, 0),
		Backoff4: Seconds(sb.WorkerBackoff4Seconds, 0),
	}
}

// Tracking wires the tracking service. rdb may be nil, then neither the
// cache nor the rate limiter is used. A repo that keeps poll bookkeeping
// gets every attempt recorded with the planner's per-order backoff.
func Tracking(cfg *config.Config, c carrier.Client, repo tracking.Repository, rdb *redis.Client, pub tracking.Publisher, log *zap.Logger) *tracking.Service {
	svc := tracking.New(c, repo, log).
		WithConcurrency(cfg.ShipBox.TrackingConcurrency)
	if rdb != nil {
		rate := int64(cfg.ShipBox.CarrierRateLimitPerMinute)
		if rate <= 0 {
			rate = DefaultRatePerMinute
		}
		svc.WithCache(rediscache.NewWithClient(rdb), Seconds(cfg.ShipBox.TrackingCacheTTLSeconds, DefaultCacheTTL)).
			WithRateLimit(rediscache.NewRateLimiter(rdb), rate)
	}
	if pub != nil {
		svc.WithPublisher(pub)
	}
	if rec, ok := repo.(tracking.CheckRecorder); ok {
		svc.WithCheckRecorder(rec, poller.NewPlanner(PlannerConfig(cfg), nil))
	}
	return svc
}

// Shipments wires the shipment service. rdb may be nil, then creation is
// not locked across processes.
func Shipments(cfg *config.Config, c carrier.Client, repo shipments.Repository, rdb *redis.Client, pub shipments.Publisher, log *zap.Logger) (*shipments.Service, error) {
	st := shipments.Settings{
		DefaultCountry: cfg.ShipBox.DefaultCountry,
		LockTTL:        Seconds(cfg.ShipBox.CreateLockTTLSeconds, 0),
	}
	if cfg.ShipBox.OrderDateZone != "" {
		loc, err := time.LoadLocation(cfg.ShipBox.OrderDateZone)
		if err != nil {
			return nil, fmt.Errorf("order_date_zone: %w", err)
		}
		st.OrderDateZone = loc
	}
	svc := shipments.New(c, repo, log).WithSettings(st)
	if rdb != nil {
		svc.WithLocker(rediscache.NewLocker(rdb))
	}
	if pub != nil {
		svc.WithPublisher(pub)
	}
	return svc, nil
}
