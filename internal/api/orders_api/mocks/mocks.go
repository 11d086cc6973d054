package mocks

import (
	"context"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/stretchr/testify/mock"
)

type MockShipments struct {
	mock.Mock
}

func (m *MockShipments) CreateShipmentByID(ctx context.Context, orderID string) (shipments.ShipmentRef, error) {
	ret := m.Called(ctx, orderID)
	return ret.Get(0).(shipments.ShipmentRef), ret.Error(1)
}

func (m *MockShipments) CancelOrder(ctx context.Context, orderID string) (shipments.CancelResult, error) {
	ret := m.Called(ctx, orderID)
	return ret.Get(0).(shipments.CancelResult), ret.Error(1)
}

type MockTracking struct {
	mock.Mock
}

func (m *MockTracking) TrackOne(ctx context.Context, shipmentID string) []models.TrackingEvent {
	ret := m.Called(ctx, shipmentID)
	return ret.Get(0).([]models.TrackingEvent)
}

func (m *MockTracking) TrackMany(ctx context.Context, orderIDs []string) map[string][]models.TrackingEvent {
	ret := m.Called(ctx, orderIDs)
	return ret.Get(0).(map[string][]models.TrackingEvent)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) ListActive(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	ret := m.Called(ctx, limit, offset)
	var out []*models.Order
	if v := ret.Get(0); v != nil {
		out = v.([]*models.Order)
	}
	return out, ret.Error(1)
}

func (m *MockOrders) ListCancelled(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	ret := m.Called(ctx, limit, offset)
	var out []*models.Order
	if v := ret.Get(0); v != nil {
		out = v.([]*models.Order)
	}
	return out, ret.Error(1)
}

func (m *MockOrders) Get(ctx context.Context, id string) (*models.Order, error) {
	ret := m.Called(ctx, id)
	var o *models.Order
	if v := ret.Get(0); v != nil {
		o = v.(*models.Order)
	}
	return o, ret.Error(1)
}

func (m *MockOrders) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	ret := m.Called(ctx, id, status)
	var o *models.Order
	if v := ret.Get(0); v != nil {
		o = v.(*models.Order)
	}
	return o, ret.Error(1)
}
