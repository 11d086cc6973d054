package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockBytesCache struct {
	mock.Mock
}

func (m *MockBytesCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ret := m.Called(ctx, key)
	var b []byte
	if v := ret.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, ret.Bool(1), ret.Error(2)
}

func (m *MockBytesCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ret := m.Called(ctx, key, value, ttl)
	return ret.Error(0)
}

func (m *MockBytesCache) Delete(ctx context.Context, key string) error {
	ret := m.Called(ctx, key)
	return ret.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ret := m.Called(ctx, key, ttl)
	return ret.String(0), ret.Bool(1), ret.Error(2)
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	ret := m.Called(ctx, key, token)
	return ret.Error(0)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	ret := m.Called(ctx, key, limit, window)
	return ret.Bool(0), ret.Get(1).(int64), ret.Error(2)
}
