package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteDeliveryLog implements DeliveryLog backed by SQLite.
type SQLiteDeliveryLog struct {
	db *sql.DB
}

// NewSQLiteDeliveryLog returns a new SQLiteDeliveryLog.
func NewSQLiteDeliveryLog(db *sql.DB) *SQLiteDeliveryLog {
	return &SQLiteDeliveryLog{db: db}
}

// LogDelivery inserts a delivery record into the database.
func (s *SQLiteDeliveryLog) LogDelivery(ctx context.Context, entry DeliveryLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_deliveries (context, provider, recipient, subject, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Context, entry.Provider, entry.Recipient, entry.Subject,
		entry.Status, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting email delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns the most recent entries ordered by created_at descending.
func (s *SQLiteDeliveryLog) ListDeliveries(ctx context.Context, limit int) (entries []DeliveryLogEntry, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context, provider, recipient, subject, status, detail, created_at
		FROM email_deliveries
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying email deliveries: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	entries = make([]DeliveryLogEntry, 0)
	for rows.Next() {
		var e DeliveryLogEntry
		if err := rows.Scan(&e.ID, &e.Context, &e.Provider, &e.Recipient, &e.Subject,
			&e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning email delivery row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating email delivery rows: %w", err)
	}
	return entries, nil
}
