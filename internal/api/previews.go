package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/bookwell/internal/templates"
)

// PreviewData is the sample content used by template previews.
func PreviewData() templates.Data {
	return templates.Data{
		UserName:         "Ana",
		ProfessionalName: "Dr. Reyes",
		ClientName:       "Ana",
		SenderName:       "Marco",
		ServiceName:      "Therapy",
		Date:             "2025-11-25",
		Time:             "14:00",
		Location:         "Community Center, Room 3",
		BookingID:        "BK-1024",
		MessagePreview:   "Hi! Could we move our session to 15:00?",
		Reason:           "the uploaded license has expired",
	}
}

// handleTemplatePreview renders a template with sample data.
// Accepts ?lang=xx and, for professional_verification, ?status=.
func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	data := PreviewData()
	data.Status = templates.ParseVerificationStatus(r.URL.Query().Get("status"))

	msg, err := s.previewer.Render(templates.Name(chi.URLParam(r, "name")), r.URL.Query().Get("lang"), data)
	if err != nil {
		var ute *templates.UnknownTemplateError
		if errors.As(err, &ute) {
			writeError(w, http.StatusNotFound, ute.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "template preview failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render template")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Template-Language", msg.Language)
	w.Header().Set("X-Template-Subject", msg.Subject)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg.HTML))
}
