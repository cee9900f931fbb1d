// Package api exposes the notification pipeline to the marketplace front end:
// event intake, notification inbox operations, live streams and template
// previews.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/bookwell/internal/async"
	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/service"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

const errInvalidJSONBody = "invalid JSON body"

// Audiences are the two notification inboxes.
const (
	AudienceUsers         = "users"
	AudienceProfessionals = "professionals"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 25 * time.Second

// Inbox is one notification collection as seen by its recipients.
type Inbox interface {
	List(ctx context.Context, recipientID string, opts notification.ListOptions) ([]notification.Record, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	SubscribeUnread(ctx context.Context, recipientID string, onSnapshot func([]notification.Record), onToast func(notification.Toast)) (func(), error)
}

// BookingReader loads bookings referenced by event requests.
type BookingReader interface {
	Get(ctx context.Context, id string) (*booking.Booking, error)
}

// BookingWatcher streams a professional's bookings.
type BookingWatcher interface {
	SubscribeBookings(ctx context.Context, professionalID string, onNew, onUpdate func(booking.Booking)) (func(), error)
}

// Previewer renders email templates.
type Previewer interface {
	Render(name templates.Name, lang string, data templates.Data) (templates.Message, error)
}

// Deps are the collaborators of the API.
type Deps struct {
	Notifier          service.Notifier
	Bookings          BookingReader
	UserInbox         Inbox
	ProfessionalInbox Inbox
	Watcher           BookingWatcher
	Previewer         Previewer
	Spawner           async.Spawner
	Logger            *slog.Logger
}

// Server holds all dependencies for the REST API handlers.
type Server struct {
	notifier  service.Notifier
	bookings  BookingReader
	inboxes   map[string]Inbox
	watcher   BookingWatcher
	previewer Previewer
	spawner   async.Spawner
	logger    *slog.Logger
}

// New creates a new API Server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		notifier: deps.Notifier,
		bookings: deps.Bookings,
		inboxes: map[string]Inbox{
			AudienceUsers:         deps.UserInbox,
			AudienceProfessionals: deps.ProfessionalInbox,
		},
		watcher:   deps.Watcher,
		previewer: deps.Previewer,
		spawner:   deps.Spawner,
		logger:    logger.With("component", "api"),
	}
}

// Mount registers all API routes under the given router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/version", s.handleVersion)

	// Domain events
	r.Post("/events/booking-confirmed", s.handleBookingEvent(eventBookingConfirmed))
	r.Post("/events/booking-cancelled", s.handleBookingEvent(eventBookingCancelled))
	r.Post("/events/appointment-reminder", s.handleBookingEvent(eventAppointmentReminder))
	r.Post("/events/feedback-request", s.handleBookingEvent(eventFeedbackRequest))
	r.Post("/events/new-message", s.handleNewMessage)
	r.Post("/events/welcome", s.handleWelcome)
	r.Post("/events/professional-verification", s.handleProfessionalVerification)
	r.Post("/reminders/sweep", s.handleReminderSweep)

	// Inboxes
	r.Route("/{audience}", func(r chi.Router) {
		r.Use(s.requireAudience)
		r.Get("/{recipientID}/notifications", s.handleListNotifications)
		r.Post("/{recipientID}/notifications/read-all", s.handleMarkAllRead)
		r.Get("/{recipientID}/notifications/stream", s.handleNotificationStream)
		r.Post("/notifications/{id}/read", s.handleMarkRead)
	})

	// Live bookings
	r.Get("/professionals/{id}/bookings/stream", s.handleBookingStream)

	// Template previews
	r.Get("/templates/{name}/preview", s.handleTemplatePreview)
}

// requireAudience rejects unknown inbox names.
func (s *Server) requireAudience(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.inboxes[chi.URLParam(r, "audience")]; !ok {
			writeError(w, http.StatusNotFound, "unknown audience")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inbox(r *http.Request) Inbox {
	return s.inboxes[chi.URLParam(r, "audience")]
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(b)); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// sseEvent is one queued server-sent event.
type sseEvent struct {
	name string
	data any
}

// streamSSE writes the SSE preamble and then forwards events until the
// request ends. subscribe receives a push function for its callbacks and
// returns the unsubscribe function. push blocks while the client is
// behind, which holds back only this subscription.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, subscribe func(push func(name string, data any)) (func(), error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	events := make(chan sseEvent, 16)
	push := func(name string, data any) {
		select {
		case events <- sseEvent{name: name, data: data}:
		case <-ctx.Done():
		}
	}

	unsubscribe, err := subscribe(push)
	if err != nil {
		s.logger.ErrorContext(ctx, "subscription failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": ok\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			if err := sendSSEEvent(w, flusher, ev.name, ev.data); err != nil {
				return
			}
		}
	}
}
