package mocks

import (
	"context"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ret := m.Called(ctx, id)
	var o *models.Order
	if v := ret.Get(0); v != nil {
		o = v.(*models.Order)
	}
	return o, ret.Error(1)
}

func (m *MockRepository) SetCarrierIDs(ctx context.Context, id, carrierOrderID, carrierShipmentID string) (bool, error) {
	ret := m.Called(ctx, id, carrierOrderID, carrierShipmentID)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockRepository) MarkCancelled(ctx context.Context, id string) (models.OrderStatus, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(models.OrderStatus), ret.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, topic, key string, v any) error {
	ret := m.Called(ctx, topic, key, v)
	return ret.Error(0)
}
