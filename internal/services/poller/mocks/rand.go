package mocks

import "github.com/stretchr/testify/mock"

type Rand struct {
	mock.Mock
}

func (m *Rand) Intn(n int) int {
	ret := m.Called(n)
	return ret.Int(0)
}
