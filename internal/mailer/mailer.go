// Package mailer delivers rendered emails through a transactional-email
// provider. A send is a single provider call: there is no queue and no retry.
package mailer

import "context"

// Message is a rendered email ready for delivery.
type Message struct {
	To       string
	FromName string
	Subject  string
	HTML     string
	Text     string
	// Context names the application event that produced the message, e.g.
	// "booking_confirmation". It is carried for logging and provider
	// bookkeeping only.
	Context string
}

// Result is the outcome of one send. Detail is the provider response or
// error text; it is logged, never parsed.
type Result struct {
	Success  bool
	Provider string
	Detail   string
}

// Provider is the interface for email delivery backends.
type Provider interface {
	// Name returns the provider identifier (e.g. "smtp").
	Name() string
	// Send delivers msg and returns the provider's response detail.
	Send(ctx context.Context, msg Message) (string, error)
}
