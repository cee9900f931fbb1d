package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/bookwell/internal/mailer"
)

// MockProvider is a mock implementation of mailer.Provider.
type MockProvider struct {
	mock.Mock
}

//nolint:revive
func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

//nolint:revive
func (m *MockProvider) Send(ctx context.Context, msg mailer.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}
