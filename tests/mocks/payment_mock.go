package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bivex/renewal-retry/internal/domain/entity"
)

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

// NewMockPaymentGateway creates a new mock payment gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{}
}

func (m *MockPaymentGateway) TriggerRenewalPayment(ctx context.Context, order *entity.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// MockRetryScheduler is a mock implementation of RetryScheduler
type MockRetryScheduler struct {
	mock.Mock
}

// NewMockRetryScheduler creates a new mock retry scheduler
func NewMockRetryScheduler() *MockRetryScheduler {
	return &MockRetryScheduler{}
}

func (m *MockRetryScheduler) ScheduleRetry(ctx context.Context, orderID int64, at time.Time) error {
	args := m.Called(ctx, orderID, at)
	return args.Error(0)
}

// MockEmailDispatcher is a mock implementation of EmailDispatcher
type MockEmailDispatcher struct {
	mock.Mock
}

// NewMockEmailDispatcher creates a new mock email dispatcher
func NewMockEmailDispatcher() *MockEmailDispatcher {
	return &MockEmailDispatcher{}
}

func (m *MockEmailDispatcher) Dispatch(ctx context.Context, template string, orderID int64) error {
	args := m.Called(ctx, template, orderID)
	return args.Error(0)
}
