package mocks

import (
	"context"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) PickupLocations(ctx context.Context) ([]carrier.PickupLocation, error) {
	ret := m.Called(ctx)
	var out []carrier.PickupLocation
	if v := ret.Get(0); v != nil {
		out = v.([]carrier.PickupLocation)
	}
	return out, ret.Error(1)
}

func (m *MockClient) CreateOrder(ctx context.Context, req carrier.CreateOrderRequest) (carrier.CreateOrderResult, error) {
	ret := m.Called(ctx, req)
	return ret.Get(0).(carrier.CreateOrderResult), ret.Error(1)
}

func (m *MockClient) CancelOrders(ctx context.Context, carrierOrderIDs []string) error {
	ret := m.Called(ctx, carrierOrderIDs)
	return ret.Error(0)
}

func (m *MockClient) GetTracking(ctx context.Context, shipmentID string) (carrier.Tracking, error) {
	ret := m.Called(ctx, shipmentID)
	return ret.Get(0).(carrier.Tracking), ret.Error(1)
}
