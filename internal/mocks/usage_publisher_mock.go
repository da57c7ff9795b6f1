package mocks

import (
	"context"

	"fabula-server/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// MockUsagePublisher is a mock type for the UsagePublisher type
type MockUsagePublisher struct {
	mock.Mock
}

// PublishUsageEvent provides a mock function with given fields: ctx, event
func (_m *MockUsagePublisher) PublishUsageEvent(ctx context.Context, event messaging.UsageEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// Close provides a mock function
func (_m *MockUsagePublisher) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}

// NewMockUsagePublisher creates a new instance of MockUsagePublisher.
// The first argument is typically a *testing.T value.
func NewMockUsagePublisher(t interface {
	mock.TestingT
	Helper()
}) *MockUsagePublisher {
	m := &MockUsagePublisher{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ messaging.UsagePublisher = (*MockUsagePublisher)(nil)
