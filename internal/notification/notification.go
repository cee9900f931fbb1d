// Package notification stores in-app notification records and streams a
// recipient's unread records to the UI.
package notification

import (
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/shaharia-lab/bookwell/internal/storage"
)

// Kind classifies a notification record.
type Kind string

// Notification kinds.
const (
	KindNewBooking       Kind = "new_booking"
	KindBookingCancelled Kind = "booking_cancelled"
	KindBookingUpdated   Kind = "booking_updated"
	KindReviewReceived   Kind = "review_received"
	KindMessage          Kind = "message"
	KindReminder         Kind = "reminder"
	KindGeneral          Kind = "general"
)

// Kinds lists every notification kind.
var Kinds = []Kind{
	KindNewBooking, KindBookingCancelled, KindBookingUpdated, KindReviewReceived,
	KindMessage, KindReminder, KindGeneral,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// Record is a stored notification. Only Read and ReadAt ever change after
// creation; ReadAt is set iff Read is true.
type Record struct {
	ID               string     `json:"id"`
	RecipientID      string     `json:"recipientId"`
	Kind             Kind       `json:"kind"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	RelatedBookingID string     `json:"relatedBookingId,omitempty"`
	RelatedClientID  string     `json:"relatedClientId,omitempty"`
	Read             bool       `json:"read"`
	CreatedAt        time.Time  `json:"createdAt"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
}

// NewRecord is the input of Store.Create.
type NewRecord struct {
	RecipientID      string
	Kind             Kind
	Title            string
	Body             string
	RelatedBookingID string
	RelatedClientID  string
}

// Validate checks the required fields of n.
func (n NewRecord) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.RecipientID, validation.Required),
		validation.Field(&n.Kind, validation.Required, validation.By(func(v any) error {
			if k, _ := v.(Kind); !k.Valid() {
				return validation.NewError("validation_invalid_kind", "unknown notification kind")
			}
			return nil
		})),
		validation.Field(&n.Title, validation.Required),
	)
}

// storedRecord is the document layout. CreatedAt comes from the store.
type storedRecord struct {
	RecipientID      string     `json:"recipientId"`
	Kind             Kind       `json:"kind"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	RelatedBookingID string     `json:"relatedBookingId,omitempty"`
	RelatedClientID  string     `json:"relatedClientId,omitempty"`
	Read             bool       `json:"read"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
}

// FromDocument builds a Record from a notification document.
func FromDocument(doc storage.Document) (Record, error) {
	var s storedRecord
	if err := doc.Decode(&s); err != nil {
		return Record{}, err
	}
	return Record{
		ID:               doc.ID,
		RecipientID:      s.RecipientID,
		Kind:             s.Kind,
		Title:            s.Title,
		Body:             s.Body,
		RelatedBookingID: s.RelatedBookingID,
		RelatedClientID:  s.RelatedClientID,
		Read:             s.Read,
		CreatedAt:        doc.CreateTime,
		ReadAt:           s.ReadAt,
	}, nil
}

// Tone is the framing of a toast.
type Tone string

// Toast tones.
const (
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
)

// ToneFor returns the toast tone for kind.
func ToneFor(kind Kind) Tone {
	switch kind {
	case KindNewBooking:
		return TonePositive
	case KindBookingCancelled:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

// Toast is a transient UI signal raised for a newly added record. Toasts
// are not persisted.
type Toast struct {
	NotificationID string `json:"notificationId"`
	Kind           Kind   `json:"kind"`
	Tone           Tone   `json:"tone"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}
