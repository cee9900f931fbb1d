package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/bookwell/internal/storage"
)

// MockStore is a mock implementation of storage.Store.
type MockStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockStore) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Document), args.Error(1)
}

//nolint:revive
func (m *MockStore) Add(ctx context.Context, collection string, data any) (string, error) {
	args := m.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

//nolint:revive
func (m *MockStore) Create(ctx context.Context, collection, id string, data any) error {
	args := m.Called(ctx, collection, id, data)
	return args.Error(0)
}

//nolint:revive
func (m *MockStore) Set(ctx context.Context, collection, id string, data any) error {
	args := m.Called(ctx, collection, id, data)
	return args.Error(0)
}

//nolint:revive
func (m *MockStore) Update(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	args := m.Called(ctx, collection, id, fn)
	return args.Error(0)
}

//nolint:revive
func (m *MockStore) Query(ctx context.Context, q storage.Query) ([]storage.Document, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Document), args.Error(1)
}

//nolint:revive
func (m *MockStore) Watch(ctx context.Context, q storage.Query, fn func(storage.Snapshot)) (func(), error) {
	args := m.Called(ctx, q, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}
