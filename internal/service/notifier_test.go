package service_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/bookwell/internal/async"
	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/directory"
	"github.com/shaharia-lab/bookwell/internal/mailer"
	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/service"
	"github.com/shaharia-lab/bookwell/internal/storage"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

// --- stubs ---

type stubSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail bool
}

func (s *stubSender) Send(_ context.Context, msg mailer.Message) mailer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.fail {
		return mailer.Result{Provider: "stub", Detail: "relay unavailable"}
	}
	return mailer.Result{Success: true, Provider: "stub", Detail: "OK"}
}

func (s *stubSender) messages() []mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailer.Message(nil), s.sent...)
}

// inlineSpawner runs tasks on the calling goroutine.
type inlineSpawner struct {
	names []string
}

func (s *inlineSpawner) Go(ctx context.Context, name string, task async.Task) {
	s.names = append(s.names, name)
	_ = task(ctx)
}

// --- fixture ---

var sweepDay = time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storage.SQLiteStore
	users    *notification.Store
	pros     *notification.Store
	sender   *stubSender
	spawner  *inlineSpawner
	notifier service.Notifier
}

func newFixture(t *testing.T, opts service.Options) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, _, err := storage.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewSQLiteStore(db, logger)

	reg, err := templates.New(templates.Options{BaseURL: "https://bookwell.test", Logger: logger})
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		users:   notification.NewStore(store, storage.CollectionNotifications, logger),
		pros:    notification.NewStore(store, storage.CollectionProfessionalNotifications, logger),
		sender:  &stubSender{},
		spawner: &inlineSpawner{},
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://bookwell.test/"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return sweepDay }
	}
	f.notifier = service.NewNotifier(service.Deps{
		Profiles:          directory.New(store),
		Bookings:          booking.NewRepository(store),
		UserNotes:         f.users,
		ProfessionalNotes: f.pros,
		Renderer:          reg,
		Sender:            f.sender,
		Spawner:           f.spawner,
		Logger:            logger,
	}, opts)

	f.user(t, "c1", "Ana", "ana@example.com", "en")
	f.user(t, "p1", "Dr. Silva", "silva@example.com", "en")
	return f
}

func (f *fixture) user(t *testing.T, id, name, email, lang string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), storage.CollectionUsers, id, map[string]any{
		"displayName":       name,
		"email":             email,
		"preferredLanguage": lang,
	}))
}

func (f *fixture) booking(t *testing.T, id, date string, status booking.Status) booking.Booking {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), storage.CollectionBookings, id, map[string]any{
		"clientId":       "c1",
		"professionalId": "p1",
		"serviceName":    "Therapy",
		"date":           date,
		"time":           "14:00",
		"location":       "Room 3",
		"status":         string(status),
	}))
	b, err := booking.NewRepository(f.store).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return *b
}

func (f *fixture) records(t *testing.T, s *notification.Store, recipient string) []notification.Record {
	t.Helper()
	recs, err := s.List(context.Background(), recipient, notification.ListOptions{})
	require.NoError(t, err)
	return recs
}

func eventCount(event, outcome string) float64 {
	return testutil.ToFloat64(metrics.Events.WithLabelValues(event, outcome))
}

// --- tests ---

func TestBookingConfirmed(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-25", booking.StatusConfirmed)
	before := eventCount("booking_confirmed", metrics.OutcomeOK)

	f.notifier.BookingConfirmed(context.Background(), b)

	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, notification.KindBookingUpdated, recs[0].Kind)
	assert.Equal(t, "b1", recs[0].RelatedBookingID)
	assert.Equal(t, "c1", recs[0].RelatedClientID)
	assert.False(t, recs[0].Read)
	assert.Contains(t, recs[0].Body, "Therapy")

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Equal(t, "booking_confirmation", sent[0].Context)
	assert.Equal(t, templates.DefaultAppName, sent[0].FromName)
	assert.Contains(t, sent[0].Subject, "Therapy")
	assert.Contains(t, sent[0].Text, "Dr. Silva")
	assert.Contains(t, sent[0].HTML, `href="https://bookwell.test/bookings/b1"`)

	assert.Empty(t, f.records(t, f.pros, "p1"))
	assert.Equal(t, before+1, eventCount("booking_confirmed", metrics.OutcomeOK))
}

func TestBookingConfirmed_RecipientLanguage(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.user(t, "c1", "Ana", "ana@example.com", "es-MX")
	b := f.booking(t, "b1", "2025-11-25", booking.StatusConfirmed)

	f.notifier.BookingConfirmed(context.Background(), b)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Reserva confirmada: Therapy", sent[0].Subject)
}

func TestBookingConfirmed_UnknownClientSkipsEverything(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-25", booking.StatusConfirmed)
	b.ClientID = "ghost"
	before := eventCount("booking_confirmed", metrics.OutcomeNotFound)

	f.notifier.BookingConfirmed(context.Background(), b)

	assert.Empty(t, f.records(t, f.users, "ghost"))
	assert.Empty(t, f.sender.messages())
	assert.Equal(t, before+1, eventCount("booking_confirmed", metrics.OutcomeNotFound))
}

func TestBookingConfirmed_MissingProfessionalRendersPlaceholder(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-25", booking.StatusConfirmed)
	b.ProfessionalID = "gone"

	f.notifier.BookingConfirmed(context.Background(), b)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "not specified")
}

func TestBookingConfirmed_MailFailureIsCountedNotPropagated(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.sender.fail = true
	b := f.booking(t, "b1", "2025-11-25", booking.StatusConfirmed)
	before := eventCount("booking_confirmed", metrics.OutcomeFailed)

	f.notifier.BookingConfirmed(context.Background(), b)

	assert.Len(t, f.records(t, f.users, "c1"), 1)
	assert.Len(t, f.sender.messages(), 1)
	assert.Equal(t, before+1, eventCount("booking_confirmed", metrics.OutcomeFailed))
}

func TestBookingCancelled(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-25", booking.StatusCancelled)
	ctx := context.Background()

	f.notifier.BookingCancelled(ctx, b)
	f.notifier.BookingCancelled(ctx, b)

	client := f.records(t, f.users, "c1")
	require.Len(t, client, 1)
	assert.Equal(t, notification.KindBookingCancelled, client[0].Kind)
	assert.Equal(t, "b1", client[0].RelatedBookingID)

	pro := f.records(t, f.pros, "p1")
	require.Len(t, pro, 1)
	assert.Equal(t, notification.KindBookingCancelled, pro[0].Kind)
	assert.Contains(t, pro[0].Body, "Ana")

	assert.Empty(t, f.sender.messages(), "cancellation sends no email")
}

func TestBookingCancelled_RecancellationNotifiesAgain(t *testing.T) {
	f := newFixture(t, service.Options{})
	ctx := context.Background()
	first := f.booking(t, "b1", "2025-11-25", booking.StatusCancelled)
	f.notifier.BookingCancelled(ctx, first)

	for _, st := range []booking.Status{booking.StatusConfirmed, booking.StatusCancelled} {
		require.NoError(t, f.store.Update(ctx, storage.CollectionBookings, "b1", func(storage.Fields) (storage.Fields, error) {
			return storage.Fields{"status": string(st)}, nil
		}))
	}
	again, err := booking.NewRepository(f.store).Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, again)
	require.NotEqual(t, first.Version, again.Version)

	f.notifier.BookingCancelled(ctx, *again)
	f.notifier.BookingCancelled(ctx, *again)

	assert.Len(t, f.records(t, f.users, "c1"), 2)
	assert.Len(t, f.records(t, f.pros, "p1"), 2)
}

func TestBookingCancelled_UnknownProfessionalStillNotified(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-25", booking.StatusCancelled)
	b.ProfessionalID = "p-unknown"

	f.notifier.BookingCancelled(context.Background(), b)

	assert.Len(t, f.records(t, f.users, "c1"), 1)
	assert.Len(t, f.records(t, f.pros, "p-unknown"), 1)
}

func TestNewMessage_TruncatesPreview(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.user(t, "u2", "Marco", "marco@example.com", "en")
	body := strings.Repeat("a", 150)

	f.notifier.NewMessage(context.Background(), service.Message{
		ConversationID: "conv-9",
		SenderID:       "u2",
		RecipientID:    "c1",
		Body:           body,
	})

	want := strings.Repeat("a", 100) + "..."
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "message_notification", sent[0].Context)
	assert.Equal(t, "New message from Marco", sent[0].Subject)
	assert.Contains(t, sent[0].Text, want)
	assert.NotContains(t, sent[0].Text, strings.Repeat("a", 101))
	assert.Contains(t, sent[0].HTML, want)
	assert.Contains(t, sent[0].HTML, `href="https://bookwell.test/messages/conv-9"`)

	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, notification.KindMessage, recs[0].Kind)
	assert.Equal(t, want, recs[0].Body)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", service.Preview("  hello "))
	exact := strings.Repeat("b", service.PreviewLength)
	assert.Equal(t, exact, service.Preview(exact))
	long := strings.Repeat("é", 120)
	assert.Equal(t, strings.Repeat("é", 100)+"...", service.Preview(long))
}

func TestFeedbackRequested(t *testing.T) {
	f := newFixture(t, service.Options{})
	b := f.booking(t, "b1", "2025-11-20", booking.StatusCompleted)

	f.notifier.FeedbackRequested(context.Background(), b)

	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, notification.KindGeneral, recs[0].Kind)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "feedback_request", sent[0].Context)
	assert.Equal(t, "How was your Therapy with Dr. Silva?", sent[0].Subject)
}

func TestWelcome(t *testing.T) {
	f := newFixture(t, service.Options{})

	f.notifier.Welcome(context.Background(), "c1")

	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, notification.KindGeneral, recs[0].Kind)
	assert.Equal(t, "Welcome to Bookwell", recs[0].Title)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome to Bookwell!", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Hi Ana!")
}

func TestProfessionalVerification(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.user(t, "p1", "Dr. Silva", "silva@example.com", "es")
	ctx := context.Background()

	f.notifier.ProfessionalVerification(ctx, "p1", "approved", "")
	// Spanish has no rejected content; the English variant is sent.
	f.notifier.ProfessionalVerification(ctx, "p1", "rejected", "missing license")
	f.notifier.ProfessionalVerification(ctx, "p1", "on-hold", "")

	sent := f.sender.messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "Tu perfil profesional está verificado", sent[0].Subject)
	assert.Equal(t, "Your professional profile needs changes", sent[1].Subject)
	assert.Contains(t, sent[1].Text, "missing license")
	assert.Equal(t, "Estamos revisando tu perfil profesional", sent[2].Subject)

	assert.Len(t, f.records(t, f.pros, "p1"), 3)
	assert.Empty(t, f.records(t, f.users, "p1"))
}

func TestScheduleAppointmentReminders(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.booking(t, "tomorrow", "2025-11-25", booking.StatusConfirmed)
	f.booking(t, "later", "2025-11-26", booking.StatusConfirmed)
	f.booking(t, "pending", "2025-11-25", booking.StatusPending)
	f.booking(t, "today", "2025-11-24", booking.StatusConfirmed)

	n := f.notifier.ScheduleAppointmentReminders(context.Background())

	assert.Equal(t, 1, n)
	assert.Len(t, f.spawner.names, 1)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "appointment_reminder", sent[0].Context)
	assert.Equal(t, "Reminder: Therapy tomorrow at 14:00", sent[0].Subject)

	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, notification.KindReminder, recs[0].Kind)
	assert.Equal(t, "tomorrow", recs[0].RelatedBookingID)
}

func TestScheduleAppointmentReminders_UsesConfiguredTimezone(t *testing.T) {
	// 23:30 UTC is already the next day two hours east.
	now := time.Date(2025, 11, 24, 23, 30, 0, 0, time.UTC)
	f := newFixture(t, service.Options{
		Location: time.FixedZone("UTC+2", 2*60*60),
		Now:      func() time.Time { return now },
	})
	f.booking(t, "b25", "2025-11-25", booking.StatusConfirmed)
	f.booking(t, "b26", "2025-11-26", booking.StatusConfirmed)

	n := f.notifier.ScheduleAppointmentReminders(context.Background())

	assert.Equal(t, 1, n)
	recs := f.records(t, f.users, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, "b26", recs[0].RelatedBookingID)
}

func TestScheduleAppointmentReminders_NothingDue(t *testing.T) {
	f := newFixture(t, service.Options{})

	assert.Zero(t, f.notifier.ScheduleAppointmentReminders(context.Background()))
	assert.Empty(t, f.spawner.names)
	assert.Empty(t, f.sender.messages())
}
