package mocks

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) {
	ret := m.Called(ctx, ids)
	var out []*models.Order
	if v := ret.Get(0); v != nil {
		out = v.([]*models.Order)
	}
	return out, ret.Error(1)
}

func (m *MockRepository) UpdateTrackedStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (models.OrderStatus, bool, error) {
	ret := m.Called(ctx, id, status, at)
	return ret.Get(0).(models.OrderStatus), ret.Bool(1), ret.Error(2)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, topic, key string, v any) error {
	ret := m.Called(ctx, topic, key, v)
	return ret.Error(0)
}

type MockCheckRecorder struct {
	mock.Mock
}

func (m *MockCheckRecorder) RecordCheck(ctx context.Context, id string, failed bool, next time.Time) error {
	ret := m.Called(ctx, id, failed, next)
	return ret.Error(0)
}
