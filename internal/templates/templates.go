// Package templates renders the localized transactional emails and in-app
// notification texts. Content lives in embedded YAML catalogues, one per
// language; every catalogue is validated when the Registry is built.
package templates

import (
	"fmt"
	"slices"
	"strings"
)

// Name identifies an email template.
type Name string

// Email templates.
const (
	Welcome                  Name = "welcome"
	BookingConfirmation      Name = "booking_confirmation"
	AppointmentReminder      Name = "appointment_reminder"
	MessageNotification      Name = "message_notification"
	ProfessionalVerification Name = "professional_verification"
	FeedbackRequest          Name = "feedback_request"
)

// Names lists every email template in a stable order.
var Names = []Name{
	Welcome,
	BookingConfirmation,
	AppointmentReminder,
	MessageNotification,
	ProfessionalVerification,
	FeedbackRequest,
}

// Event identifies an in-app notification text.
type Event string

// In-app notification texts.
const (
	EventBookingConfirmed             Event = "booking_confirmed"
	EventAppointmentReminder          Event = "appointment_reminder"
	EventNewMessage                   Event = "new_message"
	EventFeedbackRequest              Event = "feedback_request"
	EventBookingCancelledClient       Event = "booking_cancelled_client"
	EventBookingCancelledProfessional Event = "booking_cancelled_professional"
	EventNewBooking                   Event = "new_booking"
	EventWelcome                      Event = "welcome"
	EventVerificationApproved         Event = "verification_approved"
	EventVerificationPending          Event = "verification_pending"
	EventVerificationRejected         Event = "verification_rejected"
)

// Events lists every in-app notification text.
var Events = []Event{
	EventBookingConfirmed,
	EventAppointmentReminder,
	EventNewMessage,
	EventFeedbackRequest,
	EventBookingCancelledClient,
	EventBookingCancelledProfessional,
	EventNewBooking,
	EventWelcome,
	EventVerificationApproved,
	EventVerificationPending,
	EventVerificationRejected,
}

// VerificationStatus selects the professional_verification variant.
type VerificationStatus string

// Verification statuses.
const (
	VerificationApproved VerificationStatus = "approved"
	VerificationPending  VerificationStatus = "pending"
	VerificationRejected VerificationStatus = "rejected"
)

// VerificationStatuses lists every verification variant.
var VerificationStatuses = []VerificationStatus{VerificationApproved, VerificationPending, VerificationRejected}

// ParseVerificationStatus returns the status for s. Unknown values map to
// pending.
func ParseVerificationStatus(s string) VerificationStatus {
	st := VerificationStatus(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(VerificationStatuses, st) {
		return st
	}
	return VerificationPending
}

// InAppEvent returns the in-app text for a verification status.
func (s VerificationStatus) InAppEvent() Event {
	return Event("verification_" + string(ParseVerificationStatus(string(s))))
}

// DefaultLanguage is used when a language is missing or unsupported.
const DefaultLanguage = "en"

// Languages lists the supported language codes. Each has a catalogue under
// locales/.
var Languages = []string{"en", "es", "fr", "pt"}

// NormalizeLanguage maps a language code or tag (e.g. "pt-BR", "ES") to a
// supported language, falling back to DefaultLanguage.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if slices.Contains(Languages, code) {
		return code
	}
	return DefaultLanguage
}

// Data carries every display field a template may reference. Empty fields
// render as the locale placeholder; empty names render as the locale's
// anonymous greeting name.
type Data struct {
	UserName         string
	ProfessionalName string
	ClientName       string
	SenderName       string
	ServiceName      string
	Date             string
	Time             string
	Location         string
	BookingID        string
	MessagePreview   string
	Status           VerificationStatus
	Reason           string

	ActionURL      string
	UnsubscribeURL string
	AppName        string
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
	// Language is the language the content was taken from. It differs from
	// the requested language when a catalogue gap forced a fallback.
	Language string
}

// InAppText is a rendered in-app notification.
type InAppText struct {
	Title string
	Body  string
}

// Gap is content missing from a catalogue.
type Gap struct {
	Language string
	Key      string
	Fields   []string
}

func (g Gap) String() string {
	return fmt.Sprintf("%s/%s: missing %s", g.Language, g.Key, strings.Join(g.Fields, ", "))
}

// UnknownTemplateError is returned when rendering a template name that does
// not exist.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Name)
}
