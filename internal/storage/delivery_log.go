package storage

import (
	"context"
	"time"
)

// Delivery statuses.
const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// DeliveryLogEntry records a single outbound email attempt.
type DeliveryLogEntry struct {
	ID        int64     `json:"id"`
	Context   string    `json:"context"`
	Provider  string    `json:"provider"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryLog persists email delivery attempts.
type DeliveryLog interface {
	// LogDelivery records a delivery attempt.
	LogDelivery(ctx context.Context, entry DeliveryLogEntry) error
	// ListDeliveries returns the most recent delivery attempts, up to limit.
	ListDeliveries(ctx context.Context, limit int) ([]DeliveryLogEntry, error)
}
