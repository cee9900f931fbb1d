package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/service"
)

// MockNotifier is a mock implementation of service.Notifier.
type MockNotifier struct {
	mock.Mock
}

//nolint:revive
func (m *MockNotifier) BookingConfirmed(ctx context.Context, b booking.Booking) {
	m.Called(ctx, b)
}

//nolint:revive
func (m *MockNotifier) BookingCancelled(ctx context.Context, b booking.Booking) {
	m.Called(ctx, b)
}

//nolint:revive
func (m *MockNotifier) AppointmentReminder(ctx context.Context, b booking.Booking) {
	m.Called(ctx, b)
}

//nolint:revive
func (m *MockNotifier) NewMessage(ctx context.Context, msg service.Message) {
	m.Called(ctx, msg)
}

//nolint:revive
func (m *MockNotifier) FeedbackRequested(ctx context.Context, b booking.Booking) {
	m.Called(ctx, b)
}

//nolint:revive
func (m *MockNotifier) Welcome(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

//nolint:revive
func (m *MockNotifier) ProfessionalVerification(ctx context.Context, professionalID, status, reason string) {
	m.Called(ctx, professionalID, status, reason)
}

//nolint:revive
func (m *MockNotifier) ScheduleAppointmentReminders(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}
