package api

import (
	"context"
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/service"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

type bookingEvent string

const (
	eventBookingConfirmed    bookingEvent = "booking_confirmed"
	eventBookingCancelled    bookingEvent = "booking_cancelled"
	eventAppointmentReminder bookingEvent = "appointment_reminder"
	eventFeedbackRequest     bookingEvent = "feedback_request"
)

// MaxMessageLength bounds the message bodies accepted for notification.
const MaxMessageLength = 10000

type bookingEventRequest struct {
	BookingID string `json:"bookingId"`
}

func (r bookingEventRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookingID, validation.Required),
	)
}

type newMessageRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	RecipientID    string `json:"recipientId"`
	Body           string `json:"body"`
}

func (r newMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SenderID, validation.Required),
		validation.Field(&r.RecipientID, validation.Required),
		validation.Field(&r.Body, validation.Required, validation.RuneLength(1, MaxMessageLength)),
	)
}

type welcomeRequest struct {
	UserID string `json:"userId"`
}

func (r welcomeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
	)
}

type verificationRequest struct {
	ProfessionalID string `json:"professionalId"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

func (r verificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProfessionalID, validation.Required),
		validation.Field(&r.Status, validation.Required, validation.In(
			string(templates.VerificationApproved),
			string(templates.VerificationPending),
			string(templates.VerificationRejected),
		)),
	)
}

// decode reads a JSON body into v and validates it. On failure it writes
// the 400 response and returns false.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return false
	}
	if err := service.NewValidationError(v.Validate()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// accept hands an event to the notifier in the background and answers 202.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context)) {
	s.spawner.Go(r.Context(), "api."+name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleBookingEvent(event bookingEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bookingEventRequest
		if !decode(w, r, &req) {
			return
		}

		b, err := s.bookings.Get(r.Context(), req.BookingID)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "loading booking failed", "booking_id", req.BookingID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load booking")
			return
		}
		if b == nil {
			writeError(w, http.StatusNotFound, (&service.NotFoundError{Resource: "booking", ID: req.BookingID}).Error())
			return
		}

		bk := *b
		var fn func(ctx context.Context, b booking.Booking)
		switch event {
		case eventBookingConfirmed:
			fn = s.notifier.BookingConfirmed
		case eventBookingCancelled:
			fn = s.notifier.BookingCancelled
		case eventAppointmentReminder:
			fn = s.notifier.AppointmentReminder
		case eventFeedbackRequest:
			fn = s.notifier.FeedbackRequested
		}
		s.accept(w, r, string(event), func(ctx context.Context) { fn(ctx, bk) })
	}
}

func (s *Server) handleNewMessage(w http.ResponseWriter, r *http.Request) {
	var req newMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg := service.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Body:           req.Body,
	}
	s.accept(w, r, "new_message", func(ctx context.Context) { s.notifier.NewMessage(ctx, msg) })
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	var req welcomeRequest
	if !decode(w, r, &req) {
		return
	}
	s.accept(w, r, "welcome", func(ctx context.Context) { s.notifier.Welcome(ctx, req.UserID) })
}

func (s *Server) handleProfessionalVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if !decode(w, r, &req) {
		return
	}
	s.accept(w, r, "professional_verification", func(ctx context.Context) {
		s.notifier.ProfessionalVerification(ctx, req.ProfessionalID, req.Status, req.Reason)
	})
}

// handleReminderSweep runs the sweep for external schedulers. The reminders
// themselves are delivered in the background.
func (s *Server) handleReminderSweep(w http.ResponseWriter, r *http.Request) {
	n := s.notifier.ScheduleAppointmentReminders(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"dispatched": n})
}
