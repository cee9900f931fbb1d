// Package realtime turns live booking changes into UI callbacks and
// professional-side notification records.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaharia-lab/bookwell/internal/async"
	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/directory"
	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/storage"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

// Notes creates notification records once per key.
type Notes interface {
	CreateOnce(ctx context.Context, key string, n notification.NewRecord) (bool, error)
}

// Texts renders in-app notification texts.
type Texts interface {
	InApp(event templates.Event, lang string, data templates.Data) (templates.InAppText, error)
}

// Bridge watches a professional's bookings.
type Bridge struct {
	store    storage.Store
	notes    Notes
	profiles directory.Resolver
	texts    Texts
	spawner  async.Spawner
	logger   *slog.Logger
}

// NewBridge creates a Bridge. notes should write to the professional
// notifications collection.
func NewBridge(store storage.Store, notes Notes, profiles directory.Resolver, texts Texts, spawner async.Spawner, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		store:    store,
		notes:    notes,
		profiles: profiles,
		texts:    texts,
		spawner:  spawner,
		logger:   logger.With("component", "realtime"),
	}
}

// SubscribeBookings streams the bookings of professionalID, newest first.
// Bookings present when the subscription starts are the baseline and raise
// nothing. Afterwards every added booking calls onNew and every modified
// one calls onUpdate; a new booking, or a status change into cancelled,
// also spawns the matching professional notification. Callbacks of one
// subscription never run concurrently. Either callback may be nil.
func (b *Bridge) SubscribeBookings(ctx context.Context, professionalID string, onNew, onUpdate func(booking.Booking)) (func(), error) {
	q := booking.ForProfessional(professionalID).
		Order(storage.OrderByCreateTime, true)

	// status is only touched from the watch goroutine.
	status := make(map[string]booking.Status)

	stop, err := b.store.Watch(ctx, q, func(snap storage.Snapshot) {
		for _, c := range snap.Changes {
			bk, err := booking.FromDocument(c.Doc)
			if err != nil {
				b.logger.Warn("skipping undecodable booking", "id", c.Doc.ID, "error", err)
				continue
			}

			if snap.Initial {
				status[bk.ID] = bk.Status
				continue
			}

			switch c.Type {
			case storage.ChangeAdded:
				status[bk.ID] = bk.Status
				if onNew != nil {
					onNew(bk)
				}
				b.spawnNote(ctx, bk, notification.KindNewBooking, templates.EventNewBooking,
					notification.EventKey(notification.KindNewBooking, bk.ID))

			case storage.ChangeModified:
				prev, seen := status[bk.ID]
				status[bk.ID] = bk.Status
				if onUpdate != nil {
					onUpdate(bk)
				}
				if bk.Status == booking.StatusCancelled && (!seen || prev != booking.StatusCancelled) {
					b.spawnNote(ctx, bk, notification.KindBookingCancelled, templates.EventBookingCancelledProfessional,
						notification.TransitionKey(notification.KindBookingCancelled, bk.ID, bk.Version))
				}

			case storage.ChangeRemoved:
				delete(status, bk.ID)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to bookings of %s: %w", professionalID, err)
	}

	gauge := metrics.LiveSubscriptions.WithLabelValues("professional_bookings")
	gauge.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			gauge.Dec()
		})
	}, nil
}

// spawnNote creates the professional's record for bk under key in the
// background.
func (b *Bridge) spawnNote(ctx context.Context, bk booking.Booking, kind notification.Kind, event templates.Event, key string) {
	b.spawner.Go(ctx, "realtime."+string(kind), func(ctx context.Context) error {
		lang := templates.DefaultLanguage
		if p, err := b.profiles.Resolve(ctx, bk.ProfessionalID); err != nil {
			b.logger.WarnContext(ctx, "professional lookup failed, using default language",
				"professional_id", bk.ProfessionalID, "error", err)
		} else if p != nil {
			lang = p.PreferredLanguage
		}

		clientName := bk.ClientName
		if clientName == "" {
			if c, err := b.profiles.Resolve(ctx, bk.ClientID); err == nil && c != nil {
				clientName = c.DisplayName
			}
		}

		text, err := b.texts.InApp(event, lang, templates.Data{
			ClientName:  clientName,
			ServiceName: bk.ServiceName,
			Date:        bk.Date,
			Time:        bk.Time,
		})
		if err != nil {
			return err
		}

		created, err := b.notes.CreateOnce(ctx, key, notification.NewRecord{
			RecipientID:      bk.ProfessionalID,
			Kind:             kind,
			Title:            text.Title,
			Body:             text.Body,
			RelatedBookingID: bk.ID,
			RelatedClientID:  bk.ClientID,
		})
		if err != nil {
			return err
		}
		if created {
			b.logger.InfoContext(ctx, "professional notification created",
				"kind", kind, "booking_id", bk.ID, "professional_id", bk.ProfessionalID)
		}
		return nil
	})
}
