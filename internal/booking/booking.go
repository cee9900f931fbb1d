// Package booking reads bookings written by the marketplace front end.
// Bookings are observed, never written, by the notification pipeline.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shaharia-lab/bookwell/internal/storage"
)

// Status is the lifecycle state of a booking.
type Status string

// Booking statuses.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus normalises a stored status. The British and American
// spellings of cancelled are both accepted.
func ParseStatus(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "canceled":
		return StatusCancelled
	default:
		return st
	}
}

// DateLayout is the stored format of Booking.Date.
const DateLayout = "2006-01-02"

// Legacy field aliases, in resolution order.
var (
	clientFields       = []string{"clientId", "userId", "customerId"}
	professionalFields = []string{"professionalId", "providerId"}
	serviceFields      = []string{"serviceName", "service", "serviceType"}
	dateFields         = []string{"date", "bookingDate", "appointmentDate"}
	timeFields         = []string{"time", "bookingTime", "appointmentTime"}
	locationFields     = []string{"location", "address", "venue"}
	clientNameFields   = []string{"clientName", "userName", "customerName"}
)

// Booking is the projection of a booking document.
type Booking struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId"`
	ProfessionalID string    `json:"professionalId"`
	ServiceName    string    `json:"serviceName"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Location       string    `json:"location"`
	Status         Status    `json:"status"`
	ClientName     string    `json:"clientName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	// Version is the store revision the projection was read at. It tells
	// apart successive transitions of the same booking.
	Version int64 `json:"version"`
}

// FromDocument builds a Booking from a booking document.
func FromDocument(doc storage.Document) (Booking, error) {
	f, err := doc.Fields()
	if err != nil {
		return Booking{}, err
	}
	return Booking{
		ID:             doc.ID,
		ClientID:       f.String(clientFields...),
		ProfessionalID: f.String(professionalFields...),
		ServiceName:    f.String(serviceFields...),
		Date:           f.String(dateFields...),
		Time:           f.String(timeFields...),
		Location:       f.String(locationFields...),
		Status:         ParseStatus(f.String("status")),
		ClientName:     f.String(clientNameFields...),
		CreatedAt:      doc.CreateTime,
		Version:        doc.Version,
	}, nil
}

// ForProfessional returns the query over the bookings of professionalID,
// whichever alias the document stores it under.
func ForProfessional(professionalID string) storage.Query {
	return storage.From(storage.CollectionBookings).
		WhereAny(professionalFields, storage.OpEqual, professionalID)
}

// Repository reads bookings from the document store.
type Repository struct {
	store storage.Store
}

// NewRepository creates a Repository.
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// Get returns the booking, or nil if it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	doc, err := r.store.Get(ctx, storage.CollectionBookings, id)
	if err != nil {
		return nil, fmt.Errorf("getting booking %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	b, err := FromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListConfirmedOn returns the confirmed bookings dated day (DateLayout).
// Dates stored under a legacy alias and statuses in any case match, as
// they do in the projection.
func (r *Repository) ListConfirmedOn(ctx context.Context, day string) ([]Booking, error) {
	docs, err := r.store.Query(ctx, storage.From(storage.CollectionBookings).
		Match(storage.Filter{Field: "status", Op: storage.OpEqual, Value: StatusConfirmed, FoldCase: true}).
		WhereAny(dateFields, storage.OpEqual, day))
	if err != nil {
		return nil, fmt.Errorf("listing confirmed bookings on %s: %w", day, err)
	}
	out := make([]Booking, 0, len(docs))
	for _, d := range docs {
		b, err := FromDocument(d)
		if err != nil {
			return nil, err
		}
		if b.Status != StatusConfirmed || b.Date != day {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
