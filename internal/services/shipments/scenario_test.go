package shipments_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier/carrierhttp"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/BearBump/ShipBox/internal/services/tracking"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memOrders struct {
	mu sync.Mutex
	m  map[string]*models.Order
}

func (r *memOrders) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.m[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrders) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) {
	var out []*models.Order
	for _, id := range ids {
		if o, err := r.GetOrder(ctx, id); err == nil {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memOrders) SetCarrierIDs(ctx context.Context, id, carrierOrderID, carrierShipmentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.m[id]
	if o.CarrierShipmentID != nil {
		return false, nil
	}
	o.CarrierOrderID, o.CarrierShipmentID = &carrierOrderID, &carrierShipmentID
	return true, nil
}

func (r *memOrders) MarkCancelled(ctx context.Context, id string) (models.OrderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.m[id]
	prev := o.Status
	o.Status, o.OrderCancelled = models.OrderStatusCancelled, true
	return prev, nil
}

func (r *memOrders) UpdateTrackedStatus(ctx context.Context, id string, st models.OrderStatus, at time.Time) (models.OrderStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.m[id]
	if o.Status.IsTerminal() {
		return "", false, nil
	}
	prev := o.Status
	o.Status, o.LastTrackingUpdate = st, &at
	return prev, true, nil
}

func carrierServer(t *testing.T, creates *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t"}`))
	})
	mux.HandleFunc("/pickup-locations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"locations":[{"name":"Primary"}]}`))
	})
	mux.HandleFunc("/orders/create", func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		_, _ = w.Write([]byte(`{"order_id":9001,"shipment_id":7001}`))
	})
	mux.HandleFunc("/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/tracking/7001", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"7001":{"tracking_data":{"track_status":1,"shipment_status":3}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScenario_CreateTrackReconcileCancel(t *testing.T) {
	var creates atomic.Int32
	srv := carrierServer(t, &creates)
	client := carrierhttp.New(srv.URL, "ops@example.com", "secret", time.Second)

	repo := &memOrders{m: map[string]*models.Order{
		"ord-1": {
			ID:     "ord-1",
			Status: models.OrderStatusPlaced,
			Items:  []models.OrderItem{{ProductID: "p-1", Name: "Kurta", Price: decimal.NewFromInt(499), Quantity: 1}},
			Address: &models.Address{
				FirstName: "Asha", LastName: "Rao", HouseNo: "12B", Street: "MG Road",
				City: "Pune", State: "Maharashtra", Zipcode: "411001",
				Phone: "9999999999", Email: "asha@example.com",
			},
			Amount: decimal.NewFromInt(499),
		},
	}}
	ship := shipments.New(client, repo, nil)
	track := tracking.New(client, repo, nil)
	ctx := context.Background()

	ref, err := ship.CreateShipmentByID(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, "7001", ref.CarrierShipmentID)

	o, _ := repo.GetOrder(ctx, "ord-1")
	require.Equal(t, "7001", *o.CarrierShipmentID)
	require.Equal(t, models.OrderStatusPlaced, o.Status)

	// second call is a no-op
	_, err = ship.CreateShipmentByID(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), creates.Load())

	events := track.TrackOne(ctx, ref.CarrierShipmentID)
	require.Len(t, events, 1)
	require.Equal(t, models.OrderStatusDispatched, events[0].Status)

	out := track.TrackMany(ctx, []string{"ord-1"})
	require.Equal(t, models.OrderStatusDispatched, out["ord-1"][0].Status)
	o, _ = repo.GetOrder(ctx, "ord-1")
	require.Equal(t, models.OrderStatusDispatched, o.Status)

	// carrier refuses cancellation, the order is cancelled anyway
	res, err := ship.CancelOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.NotEmpty(t, res.CarrierError)
	o, _ = repo.GetOrder(ctx, "ord-1")
	require.Equal(t, models.OrderStatusCancelled, o.Status)
	require.True(t, o.OrderCancelled)

	// cancelled orders are no longer tracked
	out = track.TrackMany(ctx, []string{"ord-1"})
	require.Empty(t, out["ord-1"])
}
