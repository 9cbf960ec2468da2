package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// MockRetryStore is a mock implementation of RetryStore
type MockRetryStore struct {
	mock.Mock
}

// NewMockRetryStore creates a new mock retry store
func NewMockRetryStore() *MockRetryStore {
	return &MockRetryStore{}
}

func (m *MockRetryStore) Save(ctx context.Context, retry *entity.Retry) (int64, error) {
	args := m.Called(ctx, retry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRetryStore) Get(ctx context.Context, id int64) (*entity.Retry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Retry), args.Error(1)
}

func (m *MockRetryStore) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRetryStore) Query(ctx context.Context, q repository.RetryQuery) ([]*entity.Retry, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Retry), args.Error(1)
}

func (m *MockRetryStore) IDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRetryStore) LastForOrder(ctx context.Context, orderID int64) (*entity.Retry, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Retry), args.Error(1)
}

func (m *MockRetryStore) CountForOrder(ctx context.Context, orderID int64) (int, error) {
	args := m.Called(ctx, orderID)
	return args.Int(0), args.Error(1)
}
