package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

// FakeClient is an in-process carrier for local runs without carrier
// credentials. Tracking codes are derived from the shipment id, so the same
// shipment always reports the same status.
type FakeClient struct {
	mu        sync.Mutex
	created   map[string]carrier.CreateOrderResult
	cancelled map[string]bool
}

func New() *FakeClient {
	return &FakeClient{
		created:   make(map[string]carrier.CreateOrderResult),
		cancelled: make(map[string]bool),
	}
}

func (f *FakeClient) PickupLocations(ctx context.Context) ([]carrier.PickupLocation, error) {
	return []carrier.PickupLocation{{Name: "Primary Warehouse"}}, nil
}

func (f *FakeClient) CreateOrder(ctx context.Context, req carrier.CreateOrderRequest) (carrier.CreateOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.created[req.OrderID]; ok {
		return res, nil
	}
	v := hash(req.OrderID)
	res := carrier.CreateOrderResult{
		OrderID:    fmt.Sprintf("%d", 100000+v%900000),
		ShipmentID: fmt.Sprintf("%d", 500000+v%500000),
	}
	f.created[req.OrderID] = res
	return res, nil
}

func (f *FakeClient) CancelOrders(ctx context.Context, carrierOrderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range carrierOrderIDs {
		f.cancelled[id] = true
	}
	return nil
}

func (f *FakeClient) GetTracking(ctx context.Context, shipmentID string) (carrier.Tracking, error) {
	now := time.Now().UTC()
	// 0..6: from "new" up to "delivered"
	code := int(hash(shipmentID) % 7)
	return carrier.Tracking{
		Found:          true,
		TrackStatus:    carrier.StatusCode(1),
		ShipmentStatus: carrier.StatusCode(code),
		UpdatedAt:      &now,
		City:           "Fake City",
	}, nil
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
