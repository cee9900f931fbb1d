package storage

import (
	"context"
	"fmt"
	"sync"
)

// watcher is one live query. Writes to the watched collection coalesce into
// a single pending signal; the watcher goroutine re-runs the query and
// diffs it against the last delivered result set, so batches are delivered
// one at a time and in commit order.
type watcher struct {
	store *SQLiteStore
	q     Query
	fn    func(Snapshot)

	signal chan struct{}
	done   chan struct{}
	once   sync.Once

	prev map[string]Document
}

// Watch captures the current result set of q before returning and then
// delivers it to fn as the initial snapshot, followed by one snapshot per
// observed change batch. fn runs on a dedicated goroutine; the returned
// function stops future deliveries and may be called from within fn.
func (s *SQLiteStore) Watch(ctx context.Context, q Query, fn func(Snapshot)) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	w := &watcher{
		store:  s,
		q:      q,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	// Register before the initial read so no write can fall between them.
	s.addWatcher(w)

	docs, err := s.Query(ctx, q)
	if err != nil {
		s.removeWatcher(w)
		return nil, fmt.Errorf("initial snapshot for %s: %w", q.Collection, err)
	}
	initial := Snapshot{Docs: docs, Initial: true, Changes: make([]Change, 0, len(docs))}
	w.prev = make(map[string]Document, len(docs))
	for _, d := range docs {
		w.prev[d.ID] = d
		initial.Changes = append(initial.Changes, Change{Type: ChangeAdded, Doc: d})
	}

	go w.run(ctx, initial)

	return w.stop, nil
}

func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.done)
		w.store.removeWatcher(w)
	})
}

func (w *watcher) run(ctx context.Context, initial Snapshot) {
	defer w.stop()

	if !w.deliver(initial) {
		return
	}

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-w.signal:
		}

		snap, err := w.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.store.logger.Error("live query failed",
				"collection", w.q.Collection, "error", err)
			continue
		}
		if len(snap.Changes) == 0 {
			continue
		}
		if !w.deliver(snap) {
			return
		}
	}
}

// deliver invokes the listener unless the watch has been stopped. A panic in
// the listener is logged and ends the watch.
func (w *watcher) deliver(snap Snapshot) (ok bool) {
	select {
	case <-w.done:
		return false
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			w.store.logger.Error("live query listener panicked",
				"collection", w.q.Collection, "panic", r)
			ok = false
		}
	}()
	w.fn(snap)
	return true
}

// next re-runs the query and computes the changes since the last snapshot.
func (w *watcher) next(ctx context.Context) (Snapshot, error) {
	docs, err := w.store.Query(ctx, w.q)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Docs: docs}
	current := make(map[string]Document, len(docs))
	for _, d := range docs {
		current[d.ID] = d
		old, seen := w.prev[d.ID]
		switch {
		case !seen:
			snap.Changes = append(snap.Changes, Change{Type: ChangeAdded, Doc: d})
		case old.Version != d.Version:
			snap.Changes = append(snap.Changes, Change{Type: ChangeModified, Doc: d})
		}
	}
	for id, d := range w.prev {
		if _, ok := current[id]; !ok {
			snap.Changes = append(snap.Changes, Change{Type: ChangeRemoved, Doc: d})
		}
	}
	w.prev = current
	return snap, nil
}

func (s *SQLiteStore) addWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watchers[w.q.Collection]
	if !ok {
		set = make(map[*watcher]struct{})
		s.watchers[w.q.Collection] = set
	}
	set[w] = struct{}{}
}

func (s *SQLiteStore) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.watchers[w.q.Collection]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(s.watchers, w.q.Collection)
		}
	}
}

// signal wakes every watcher of collection. It never blocks: a watcher that
// already has a pending signal will pick up this write on its next query.
func (s *SQLiteStore) signal(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers[collection] {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}
