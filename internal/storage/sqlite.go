package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// migration represents a single schema migration step.
type migration struct {
	version int
	sql     string
}

// migrations holds all schema migrations in order. Each migration is applied
// exactly once, tracked by the schema_migrations table.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE documents (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT    NOT NULL,
    id         TEXT    NOT NULL,
    data       TEXT    NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    version    INTEGER NOT NULL DEFAULT 1,
    UNIQUE (collection, id)
);
CREATE INDEX idx_documents_collection_created ON documents(collection, created_at DESC, seq DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX idx_documents_recipient ON documents(collection, json_extract(data, '$.recipientId'));
CREATE INDEX idx_documents_professional ON documents(collection, json_extract(data, '$.professionalId'));
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE email_deliveries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    context    TEXT NOT NULL,
    provider   TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    subject    TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
CREATE INDEX idx_email_deliveries_created ON email_deliveries(created_at DESC);
`,
	},
}

// pragmas are applied to every new handle.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// NewSQLiteDB opens the database at dbPath (":memory:" for an in-memory
// one) and applies pending migrations. The bool reports whether the schema
// was created by this call.
func NewSQLiteDB(dbPath string) (*sql.DB, bool, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, false, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("opening database: %w", err)
	}
	// Watch relies on writes being serialized through one connection. It
	// also keeps a :memory: database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	fresh, err := setup(ctx, db)
	if err != nil {
		return nil, false, multierror.Append(err, db.Close()).ErrorOrNil()
	}
	return db, fresh, nil
}

func setup(ctx context.Context, db *sql.DB) (bool, error) {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return false, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	fresh, err := migrate(ctx, db)
	if err != nil {
		return false, fmt.Errorf("running migrations: %w", err)
	}
	return fresh, nil
}

// migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func migrate(ctx context.Context, db *sql.DB) (bool, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return false, fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&current); err != nil {
		return false, fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return false, fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return current == 0, nil
}

// inTx runs fn in a transaction, rolling back when it fails.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return multierror.Append(err, tx.Rollback()).ErrorOrNil()
	}
	return tx.Commit()
}
