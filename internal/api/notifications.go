package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/storage"
)

// handleListNotifications returns a recipient's notifications, newest first.
// Accepts ?unread=true and an optional ?limit=N (default 50).
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	opts := notification.ListOptions{Limit: notification.DefaultListLimit}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	opts.UnreadOnly, _ = strconv.ParseBool(r.URL.Query().Get("unread"))

	recipientID := chi.URLParam(r, "recipientID")
	records, err := s.inbox(r).List(r.Context(), recipientID, opts)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list notifications failed", "recipient_id", recipientID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.inbox(r).MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "mark read failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkAllRead marks every unread notification of the recipient. A
// partial failure still reports how many were marked.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	n, err := s.inbox(r).MarkAllRead(r.Context(), recipientID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "mark all read failed", "recipient_id", recipientID, "marked", n, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "failed to mark some notifications read",
			"marked": n,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

// handleNotificationStream streams unread snapshots and toasts over SSE.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	inbox := s.inbox(r)
	s.streamSSE(w, r, func(push func(string, any)) (func(), error) {
		return inbox.SubscribeUnread(r.Context(), recipientID,
			func(records []notification.Record) { push("snapshot", records) },
			func(t notification.Toast) { push("toast", t) },
		)
	})
}

// handleBookingStream streams a professional's new and updated bookings.
func (s *Server) handleBookingStream(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "id")
	s.streamSSE(w, r, func(push func(string, any)) (func(), error) {
		return s.watcher.SubscribeBookings(r.Context(), professionalID,
			func(b booking.Booking) { push("booking.new", b) },
			func(b booking.Booking) { push("booking.updated", b) },
		)
	})
}
