package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/storage"
)

const (
	// UnreadLimit caps the live unread snapshot.
	UnreadLimit = 50
	// DefaultListLimit applies when ListOptions.Limit is not set.
	DefaultListLimit = 50
)

// Store manages the notification records of one collection.
type Store struct {
	store      storage.Store
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// NewStore creates a Store over collection.
func NewStore(store storage.Store, collection string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		store:      store,
		collection: collection,
		logger:     logger.With("component", "notification", "collection", collection),
		now:        time.Now,
	}
}

// Collection returns the collection the store writes to.
func (s *Store) Collection() string {
	return s.collection
}

// Create inserts an unread record and returns its id.
func (s *Store) Create(ctx context.Context, n NewRecord) (string, error) {
	if err := n.Validate(); err != nil {
		return "", fmt.Errorf("invalid notification: %w", err)
	}
	id, err := s.store.Add(ctx, s.collection, storedRecord{
		RecipientID:      n.RecipientID,
		Kind:             n.Kind,
		Title:            n.Title,
		Body:             n.Body,
		RelatedBookingID: n.RelatedBookingID,
		RelatedClientID:  n.RelatedClientID,
	})
	if err != nil {
		return "", fmt.Errorf("creating %s notification: %w", n.Kind, err)
	}
	metrics.NotificationsCreated.WithLabelValues(s.collection, string(n.Kind)).Inc()
	return id, nil
}

// CreateOnce inserts an unread record under key unless one exists already.
// It reports whether a record was created. Concurrent observers of the same
// domain event use a shared key so the recipient is notified once.
func (s *Store) CreateOnce(ctx context.Context, key string, n NewRecord) (bool, error) {
	if err := n.Validate(); err != nil {
		return false, fmt.Errorf("invalid notification: %w", err)
	}
	err := s.store.Create(ctx, s.collection, key, storedRecord{
		RecipientID:      n.RecipientID,
		Kind:             n.Kind,
		Title:            n.Title,
		Body:             n.Body,
		RelatedBookingID: n.RelatedBookingID,
		RelatedClientID:  n.RelatedClientID,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating %s notification: %w", n.Kind, err)
	}
	metrics.NotificationsCreated.WithLabelValues(s.collection, string(n.Kind)).Inc()
	return true, nil
}

// EventKey returns the CreateOnce key for kind raised by bookingID. Use it
// for events a booking raises once in its lifetime.
func EventKey(kind Kind, bookingID string) string {
	return string(kind) + ":" + bookingID
}

// TransitionKey returns the CreateOnce key for kind raised by the booking
// revision version. Observers of the same write share the key; a later
// transition of the same kind gets a new one.
func TransitionKey(kind Kind, bookingID string, version int64) string {
	return EventKey(kind, bookingID) + "@" + strconv.FormatInt(version, 10)
}

// Get returns the record, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := s.store.Get(ctx, s.collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	r, err := FromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOptions filters List.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

// List returns a recipient's records, newest first.
func (s *Store) List(ctx context.Context, recipientID string, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := storage.From(s.collection).Where("recipientId", storage.OpEqual, recipientID)
	if opts.UnreadOnly {
		q = q.Where("read", storage.OpEqual, false)
	}
	docs, err := s.store.Query(ctx, q.Order(storage.OrderByCreateTime, true).Take(limit))
	if err != nil {
		return nil, fmt.Errorf("listing notifications for %s: %w", recipientID, err)
	}
	return s.decodeAll(docs), nil
}

// MarkRead marks the record read. Only the first call writes; readAt keeps
// the time of that call. Returns storage.ErrNotFound for an unknown id.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	err := s.store.Update(ctx, s.collection, id, func(cur storage.Fields) (storage.Fields, error) {
		if cur.Bool("read") {
			return nil, nil
		}
		return storage.Fields{"read": true, "readAt": s.now().UTC()}, nil
	})
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread record of recipientID read. Updates run
// concurrently; a failure leaves that record unread and is reported in the
// returned error alongside the number of records marked.
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	docs, err := s.store.Query(ctx, storage.From(s.collection).
		Where("recipientId", storage.OpEqual, recipientID).
		Where("read", storage.OpEqual, false))
	if err != nil {
		return 0, fmt.Errorf("listing unread notifications for %s: %w", recipientID, err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   *multierror.Error
		marked int
	)
	for _, d := range docs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := s.MarkRead(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", id, err))
				return
			}
			marked++
		}(d.ID)
	}
	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Warn("mark all read partially failed",
			"recipient_id", recipientID, "marked", marked, "failed", errs.Len())
		return marked, err
	}
	return marked, nil
}

// SubscribeUnread streams the unread records of recipientID, newest first
// and capped at UnreadLimit. onSnapshot receives the full list on
// subscription and after every change. onToast, if set, is called once for
// each record created after the previous snapshot. Older records that move
// into a full window when another is read do not toast.
func (s *Store) SubscribeUnread(ctx context.Context, recipientID string, onSnapshot func([]Record), onToast func(Toast)) (func(), error) {
	q := storage.From(s.collection).
		Where("recipientId", storage.OpEqual, recipientID).
		Where("read", storage.OpEqual, false).
		Order(storage.OrderByCreateTime, true).
		Take(UnreadLimit)

	// Deliveries run on one goroutine, so newest needs no lock.
	var newest time.Time
	stop, err := s.store.Watch(ctx, q, func(snap storage.Snapshot) {
		onSnapshot(s.decodeAll(snap.Docs))
		since := newest
		for _, d := range snap.Docs {
			if d.CreateTime.After(newest) {
				newest = d.CreateTime
			}
		}
		if snap.Initial || onToast == nil {
			return
		}
		for _, c := range snap.Changes {
			if c.Type != storage.ChangeAdded || !c.Doc.CreateTime.After(since) {
				continue
			}
			r, err := FromDocument(c.Doc)
			if err != nil {
				s.logger.Warn("skipping undecodable notification", "id", c.Doc.ID, "error", err)
				continue
			}
			onToast(Toast{
				NotificationID: r.ID,
				Kind:           r.Kind,
				Tone:           ToneFor(r.Kind),
				Title:          r.Title,
				Body:           r.Body,
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to unread notifications for %s: %w", recipientID, err)
	}

	gauge := metrics.LiveSubscriptions.WithLabelValues("unread_notifications")
	gauge.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			gauge.Dec()
		})
	}, nil
}

func (s *Store) decodeAll(docs []storage.Document) []Record {
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		r, err := FromDocument(d)
		if err != nil {
			s.logger.Warn("skipping undecodable notification", "id", d.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}
