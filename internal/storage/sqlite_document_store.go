package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements Store on top of a SQLite database opened with
// NewSQLiteDB.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{} // collection → watchers
}

// NewSQLiteStore returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:       db,
		logger:   logger.With("component", "storage"),
		now:      time.Now,
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// Get returns the document, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, data, created_at, updated_at, version
		FROM documents WHERE collection = ? AND id = ?`, collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

// Add inserts data as a new document with a generated id.
func (s *SQLiteStore) Add(ctx context.Context, collection string, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding %s document: %w", collection, err)
	}

	id := uuid.NewString()
	now := s.now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, 1)`,
		collection, id, string(raw), now, now,
	); err != nil {
		return "", fmt.Errorf("inserting %s document: %w", collection, err)
	}

	s.signal(collection)
	return id, nil
}

// Create inserts data under id unless a document with that id exists.
func (s *SQLiteStore) Create(ctx context.Context, collection, id string, data any) error {
	if id == "" {
		return fmt.Errorf("creating %s document: id is required", collection)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}

	now := s.now().UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("inserting %s/%s: %w", collection, id, ErrAlreadyExists)
	}

	s.signal(collection)
	return nil
}

// Set creates or replaces the document with the given id. The creation
// time of an existing document is preserved.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, data any) error {
	if id == "" {
		return fmt.Errorf("setting %s document: id is required", collection)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}

	now := s.now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			version = documents.version + 1`,
		collection, id, string(raw), now, now,
	); err != nil {
		return fmt.Errorf("upserting %s/%s: %w", collection, id, err)
	}

	s.signal(collection)
	return nil
}

// Update applies fn to the current document in a transaction and merges the
// returned patch into it.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	changed, err := s.update(ctx, collection, id, fn)
	if err != nil {
		return err
	}
	if changed {
		s.signal(collection)
	}
	return nil
}

func (s *SQLiteStore) update(ctx context.Context, collection, id string, fn UpdateFunc) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update %s/%s: %w", collection, id, err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback update", "collection", collection, "id", id, "error", rbErr)
		}
	}()

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("updating %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}

	current := Fields{}
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return false, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}

	patch, err := fn(maps.Clone(current))
	if err != nil {
		return false, err
	}
	if patch == nil {
		return false, nil
	}

	maps.Copy(current, patch)
	updated, err := json.Marshal(current)
	if err != nil {
		return false, fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, updated_at = ?, version = version + 1
		WHERE collection = ? AND id = ?`,
		string(updated), s.now().UTC().UnixNano(), collection, id,
	); err != nil {
		return false, fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// Query returns the documents matching q. Rows are fully read before
// returning so the single connection is released to the caller.
func (s *SQLiteStore) Query(ctx context.Context, q Query) (docs []Document, err error) {
	stmt, args, err := q.toSQL()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Collection, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	docs = make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", q.Collection, err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var (
		d                  Document
		data               string
		created, updatedAt int64
	)
	if err := r.Scan(&d.ID, &d.Collection, &data, &created, &updatedAt, &d.Version); err != nil {
		return Document{}, err
	}
	d.Data = json.RawMessage(data)
	d.CreateTime = time.Unix(0, created).UTC()
	d.UpdateTime = time.Unix(0, updatedAt).UTC()
	return d, nil
}
