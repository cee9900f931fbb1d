// Package storage provides the document store used by every component:
// JSON documents grouped in named collections, simple filtered queries and
// live change subscriptions.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Collection names used by the application.
const (
	CollectionUsers                     = "users"
	CollectionBookings                  = "bookings"
	CollectionNotifications             = "notifications"
	CollectionProfessionalNotifications = "professional_notifications"
)

var (
	// ErrNotFound is returned by Update when the target document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is a single stored JSON document.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreateTime time.Time       `json:"create_time"`
	UpdateTime time.Time       `json:"update_time"`
	Version    int64           `json:"version"`
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Fields returns the document data as a generic field map.
func (d Document) Fields() (Fields, error) {
	f := Fields{}
	if len(d.Data) == 0 {
		return f, nil
	}
	if err := d.Decode(&f); err != nil {
		return nil, err
	}
	return f, nil
}

// Fields is a decoded document body.
type Fields map[string]any

// String returns the first non-empty value among the given keys, in order.
// Documents written by older clients carry the same datum under different
// names; the alias list is the single place those names are reconciled.
// Numbers and booleans are formatted; nested values are ignored.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(x)
		case json.Number:
			s = x.String()
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Bool returns the first boolean value among the given keys.
func (f Fields) Bool(keys ...string) bool {
	for _, k := range keys {
		if b, ok := f[k].(bool); ok {
			return b
		}
	}
	return false
}

// UpdateFunc receives the current fields of a document and returns the
// fields to merge into it. Returning a nil patch leaves the document
// untouched: no write happens and watchers are not signalled.
type UpdateFunc func(current Fields) (patch Fields, err error)

// Store is the document store contract.
type Store interface {
	// Get returns the document, or nil if it does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Add inserts data as a new document with a store-assigned id and
	// creation time, returning the id.
	Add(ctx context.Context, collection string, data any) (string, error)
	// Create inserts data under id. Returns ErrAlreadyExists if the id is
	// taken; the existing document is left untouched.
	Create(ctx context.Context, collection, id string, data any) error
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data any) error
	// Update applies fn to the document inside a transaction.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error
	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]Document, error)
	// Watch delivers snapshots of q's result set to fn until the returned
	// function is called or ctx is done.
	Watch(ctx context.Context, q Query, fn func(Snapshot)) (func(), error)
}

// ChangeType classifies a document delta within a snapshot.
type ChangeType string

// Change types.
const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is a single document delta.
type Change struct {
	Type ChangeType
	Doc  Document
}

// Snapshot is the full ordered result set of a watched query together with
// the deltas since the previous snapshot. The first snapshot of a watch has
// Initial set and reports every document as added.
type Snapshot struct {
	Docs    []Document
	Changes []Change
	Initial bool
}
