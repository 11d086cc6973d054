package bootstrap

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/carrierhttp"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestSecondsAndOr(t *testing.T) {
	require.Equal(t, time.Minute, Seconds(0, time.Minute))
	require.Equal(t, time.Minute, Seconds(-5, time.Minute))
	require.Equal(t, 3*time.Second, Seconds(3, time.Minute))
	require.Equal(t, "x", Or("", "x"))
	require.Equal(t, "y", Or("y", "x"))
}

func TestCarrier_Selection(t *testing.T) {
	c, err := Carrier(config.CarrierConfig{Mode: "fake"})
	require.NoError(t, err)
	_, ok := c.(*fake.FakeClient)
	require.True(t, ok)

	c, err = Carrier(config.CarrierConfig{BaseURL: "http://localhost:9000", Mode: "fake"})
	require.NoError(t, err)
	_, ok = c.(*fake.FakeClient)
	require.True(t, ok)

	c, err = Carrier(config.CarrierConfig{BaseURL: "http://localhost:9000", Email: "e", Password: "p"})
	require.NoError(t, err)
	_, ok = c.(*carrierhttp.Client)
	require.True(t, ok)
}

func TestCarrier_NoBaseURL_Fails(t *testing.T) {
	_, err := Carrier(config.CarrierConfig{})
	require.Error(t, err)

	_, err = Carrier(config.CarrierConfig{Mode: "http", Email: "e", Password: "p"})
	require.ErrorContains(t, err, "base_url")

	_, err = Carrier(config.CarrierConfig{Mode: "sandbox", BaseURL: "http://localhost:9000"})
	require.ErrorContains(t, err, "sandbox")
}

func TestOpenPostgres_GivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := OpenPostgres(ctx, "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", 0)
	require.Error(t, err)
}

type nopRepo struct{}

type failingCarrier struct {
	*fake.FakeClient
}

func (failingCarrier) GetTracking(ctx context.Context, shipmentID string) (carrier.Tracking, error) {
	return carrier.Tracking{}, &carrier.UnavailableError{Op: "tracking", Err: errors.New("http 404")}
}

func (nopRepo) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) { return nil, nil }
func (nopRepo) UpdateTrackedStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (models.OrderStatus, bool, error) {
	return "", false, nil
}

func TestTracking_CachesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Redis: config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)}}
	rdb := Redis(cfg.Redis)
	t.Cleanup(func() { _ = rdb.Close() })

	svc := Tracking(cfg, fake.New(), nopRepo{}, rdb, nil, nil)
	events := svc.TrackOne(context.Background(), "7001")
	require.NotEmpty(t, events)
	require.True(t, mr.Exists("tracking:7001:events"))
	require.Equal(t, DefaultCacheTTL, mr.TTL("tracking:7001:events"))
}

func TestPlannerConfig(t *testing.T) {
	pc := PlannerConfig(&config.Config{ShipBox: config.ShipBoxConfig{
		WorkerPollIntervalSeconds: 60,
		WorkerBackoff1Seconds:     5,
	}})
	require.Equal(t, time.Minute, pc.Interval)
	require.Equal(t, 5*time.Second, pc.Backoff1)
	require.Zero(t, pc.Backoff2)
}

type recordingRepo struct {
	nopRepo
	orders  []*models.Order
	failed  []bool
	delays  []time.Duration
	started time.Time
}

func (r *recordingRepo) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) {
	return r.orders, nil
}

func (r *recordingRepo) RecordCheck(ctx context.Context, id string, failed bool, next time.Time) error {
	r.failed = append(r.failed, failed)
	r.delays = append(r.delays, next.Sub(r.started))
	return nil
}

func TestTracking_RecordsChecksWithPlannerBackoff(t *testing.T) {
	sid := "7001"
	repo := &recordingRepo{
		orders:  []*models.Order{{ID: "o1", Status: models.OrderStatusProcessing, CarrierShipmentID: &sid, CheckFailCount: 1}},
		started: time.Now(),
	}
	cfg := &config.Config{ShipBox: config.ShipBoxConfig{WorkerBackoff2Seconds: 600}}

	svc := Tracking(cfg, failingCarrier{fake.New()}, repo, nil, nil, nil)
	svc.TrackMany(context.Background(), []string{"o1"})

	require.Equal(t, []bool{true}, repo.failed)
	// second failure in a row waits Backoff2, beyond the 5 minute cycle
	require.GreaterOrEqual(t, repo.delays[0], 10*time.Minute)
	require.Less(t, repo.delays[0], 11*time.Minute)
}

func TestShipments_BadZone(t *testing.T) {
	cfg := &config.Config{ShipBox: config.ShipBoxConfig{OrderDateZone: "Mars/Olympus"}}
	_, err := Shipments(cfg, fake.New(), nil, nil, nil, nil)
	require.Error(t, err)

	cfg.ShipBox.OrderDateZone = "Asia/Kolkata"
	svc, err := Shipments(cfg, fake.New(), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	p, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return p
}
