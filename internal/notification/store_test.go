package notification_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/storage"
)

// countingStore counts writes and can fail updates for one id.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	updates int
	failID  string
}

func (c *countingStore) Update(ctx context.Context, collection, id string, fn storage.UpdateFunc) error {
	c.mu.Lock()
	c.updates++
	fail := id == c.failID
	c.mu.Unlock()
	if fail {
		return errors.New("write failed")
	}
	return c.Store.Update(ctx, collection, id, fn)
}

func (c *countingStore) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackingStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, _, err := storage.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewSQLiteStore(db, discardLogger())
}

func newStore(t *testing.T) (*notification.Store, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: newBackingStore(t)}
	return notification.NewStore(cs, storage.CollectionNotifications, discardLogger()), cs
}

func create(t *testing.T, s *notification.Store, recipient string, kind notification.Kind, title string) string {
	t.Helper()
	id, err := s.Create(context.Background(), notification.NewRecord{RecipientID: recipient, Kind: kind, Title: title})
	require.NoError(t, err)
	return id
}

func TestCreate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, notification.NewRecord{
		RecipientID:      "c1",
		Kind:             notification.KindBookingUpdated,
		Title:            "Booking confirmed",
		Body:             "Your Therapy booking is confirmed.",
		RelatedBookingID: "b1",
	})
	require.NoError(t, err)

	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "c1", r.RecipientID)
	assert.Equal(t, notification.KindBookingUpdated, r.Kind)
	assert.Equal(t, "b1", r.RelatedBookingID)
	assert.False(t, r.Read)
	assert.Nil(t, r.ReadAt)
	assert.False(t, r.CreatedAt.IsZero())
	assert.Equal(t, storage.CollectionNotifications, s.Collection())
}

func TestCreate_Validation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	cases := []notification.NewRecord{
		{Kind: notification.KindGeneral, Title: "t"},
		{RecipientID: "c1", Title: "t"},
		{RecipientID: "c1", Kind: "party", Title: "t"},
		{RecipientID: "c1", Kind: notification.KindGeneral},
	}
	for _, n := range cases {
		_, err := s.Create(ctx, n)
		assert.Error(t, err, "%+v", n)
	}
}

func TestCreateOnce(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	key := notification.EventKey(notification.KindNewBooking, "b1")
	n := notification.NewRecord{RecipientID: "p1", Kind: notification.KindNewBooking, Title: "New booking request", RelatedBookingID: "b1"}

	created, err := s.CreateOnce(ctx, key, n)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateOnce(ctx, key, n)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.List(ctx, "p1", notification.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new_booking:b1", list[0].ID)

	_, err = s.CreateOnce(ctx, "k", notification.NewRecord{RecipientID: "p1"})
	assert.Error(t, err)
}

func TestGet_Missing(t *testing.T) {
	s, _ := newStore(t)
	r, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestMarkRead_Idempotent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first := time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return first })
	id := create(t, s, "c1", notification.KindReminder, "Appointment tomorrow")

	require.NoError(t, s.MarkRead(ctx, id))
	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, r.Read)
	require.NotNil(t, r.ReadAt)
	assert.True(t, first.Equal(*r.ReadAt))

	s.SetClock(func() time.Time { return first.Add(time.Hour) })
	require.NoError(t, s.MarkRead(ctx, id))
	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Read)
	assert.True(t, first.Equal(*again.ReadAt), "readAt must keep the first call's time")
}

func TestMarkRead_UnknownID(t *testing.T) {
	s, _ := newStore(t)
	err := s.MarkRead(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for i := range 5 {
		create(t, s, "c1", notification.KindMessage, fmt.Sprintf("msg %d", i))
	}
	create(t, s, "c2", notification.KindMessage, "other recipient")

	n, err := s.MarkAllRead(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	unread, err := s.List(ctx, "c1", notification.ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	other, err := s.List(ctx, "c2", notification.ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestMarkAllRead_NoUnreadPerformsNoWrites(t *testing.T) {
	s, cs := newStore(t)

	n, err := s.MarkAllRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, cs.updateCount())
}

func TestMarkAllRead_PartialFailure(t *testing.T) {
	s, cs := newStore(t)
	ctx := context.Background()

	a := create(t, s, "c1", notification.KindGeneral, "a")
	b := create(t, s, "c1", notification.KindGeneral, "b")
	c := create(t, s, "c1", notification.KindGeneral, "c")
	cs.failID = b

	n, err := s.MarkAllRead(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), b)
	assert.Equal(t, 2, n)

	for id, wantRead := range map[string]bool{a: true, b: false, c: true} {
		r, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, wantRead, r.Read, id)
	}
}

func TestList(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first := create(t, s, "c1", notification.KindGeneral, "first")
	second := create(t, s, "c1", notification.KindGeneral, "second")
	third := create(t, s, "c1", notification.KindGeneral, "third")
	require.NoError(t, s.MarkRead(ctx, second))

	all, err := s.List(ctx, "c1", notification.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third, second, first}, []string{all[0].ID, all[1].ID, all[2].ID})

	unread, err := s.List(ctx, "c1", notification.ListOptions{UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, third, unread[0].ID)
}

// subscriber records what a SubscribeUnread listener receives.
type subscriber struct {
	mu        sync.Mutex
	snapshots [][]notification.Record
	toasts    []notification.Toast
}

func (s *subscriber) onSnapshot(r []notification.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, r)
}

func (s *subscriber) onToast(t notification.Toast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, t)
}

func (s *subscriber) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.toasts)
}

func (s *subscriber) lastSnapshot() []notification.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[len(s.snapshots)-1]
}

func (s *subscriber) toastList() []notification.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Toast(nil), s.toasts...)
}

func TestSubscribeUnread(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	existing := create(t, s, "p1", notification.KindGeneral, "existing")

	sub := &subscriber{}
	stop, err := s.SubscribeUnread(ctx, "p1", sub.onSnapshot, sub.onToast)
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 1 }, time.Second, 5*time.Millisecond)
	initial := sub.lastSnapshot()
	require.Len(t, initial, 1)
	assert.Equal(t, existing, initial[0].ID)
	_, toasts := sub.counts()
	assert.Zero(t, toasts, "initial snapshot raises no toasts")

	booked := create(t, s, "p1", notification.KindNewBooking, "New booking request")
	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 2 }, time.Second, 5*time.Millisecond)
	snap := sub.lastSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, booked, snap[0].ID, "newest first")

	cancelled := create(t, s, "p1", notification.KindBookingCancelled, "Booking cancelled")
	require.Eventually(t, func() bool { _, n := sub.counts(); return n == 2 }, time.Second, 5*time.Millisecond)
	toastsGot := sub.toastList()
	assert.Equal(t, notification.Toast{
		NotificationID: booked, Kind: notification.KindNewBooking, Tone: notification.TonePositive, Title: "New booking request",
	}, toastsGot[0])
	assert.Equal(t, cancelled, toastsGot[1].NotificationID)
	assert.Equal(t, notification.ToneNegative, toastsGot[1].Tone)

	// Reading a record shrinks the snapshot without a toast.
	snapshotsBefore, _ := sub.counts()
	require.NoError(t, s.MarkRead(ctx, existing))
	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == snapshotsBefore+1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sub.lastSnapshot(), 2)
	_, toasts = sub.counts()
	assert.Equal(t, 2, toasts)

	// Other recipients are invisible.
	create(t, s, "p2", notification.KindGeneral, "someone else")
	time.Sleep(30 * time.Millisecond)
	n, _ := sub.counts()
	assert.Equal(t, snapshotsBefore+1, n)
}

func TestSubscribeUnread_CapsAtLimit(t *testing.T) {
	s, _ := newStore(t)
	for i := range notification.UnreadLimit + 5 {
		create(t, s, "c1", notification.KindMessage, fmt.Sprintf("m%d", i))
	}

	sub := &subscriber{}
	stop, err := s.SubscribeUnread(context.Background(), "c1", sub.onSnapshot, nil)
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 1 }, time.Second, 5*time.Millisecond)
	snap := sub.lastSnapshot()
	require.Len(t, snap, notification.UnreadLimit)
	assert.Equal(t, fmt.Sprintf("m%d", notification.UnreadLimit+4), snap[0].Title)
}

func TestSubscribeUnread_FullWindowSlideRaisesNoToast(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	for i := range notification.UnreadLimit + 5 {
		create(t, s, "c1", notification.KindMessage, fmt.Sprintf("m%d", i))
	}

	sub := &subscriber{}
	stop, err := s.SubscribeUnread(ctx, "c1", sub.onSnapshot, sub.onToast)
	require.NoError(t, err)
	defer stop()
	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 1 }, time.Second, 5*time.Millisecond)
	newest := sub.lastSnapshot()[0]

	// Reading the newest lets m4 slide into the window.
	require.NoError(t, s.MarkRead(ctx, newest.ID))
	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 2 }, time.Second, 5*time.Millisecond)
	snap := sub.lastSnapshot()
	require.Len(t, snap, notification.UnreadLimit)
	assert.Equal(t, "m4", snap[len(snap)-1].Title)
	_, toasts := sub.counts()
	assert.Zero(t, toasts)

	fresh := create(t, s, "c1", notification.KindMessage, "fresh")
	require.Eventually(t, func() bool { _, n := sub.counts(); return n == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, fresh, sub.toastList()[0].NotificationID)
	time.Sleep(30 * time.Millisecond)
	_, toasts = sub.counts()
	assert.Equal(t, 1, toasts, "the record pushed out of the window does not toast")
}

func TestSubscribeUnread_Unsubscribe(t *testing.T) {
	s, _ := newStore(t)

	sub := &subscriber{}
	stop, err := s.SubscribeUnread(context.Background(), "c1", sub.onSnapshot, sub.onToast)
	require.NoError(t, err)
	require.Eventually(t, func() bool { n, _ := sub.counts(); return n == 1 }, time.Second, 5*time.Millisecond)

	stop()
	stop()
	create(t, s, "c1", notification.KindMessage, "after unsubscribe")
	time.Sleep(30 * time.Millisecond)
	n, toasts := sub.counts()
	assert.Equal(t, 1, n)
	assert.Zero(t, toasts)
}

func TestToneFor(t *testing.T) {
	assert.Equal(t, notification.TonePositive, notification.ToneFor(notification.KindNewBooking))
	assert.Equal(t, notification.ToneNegative, notification.ToneFor(notification.KindBookingCancelled))
	assert.Equal(t, notification.ToneNeutral, notification.ToneFor(notification.KindMessage))
}
