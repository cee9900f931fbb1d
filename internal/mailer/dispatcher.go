package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/storage"
	"github.com/shaharia-lab/bookwell/internal/telemetry"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Dispatcher sends messages through a Provider and records every attempt.
type Dispatcher struct {
	provider   Provider
	deliveries storage.DeliveryLog
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher. deliveries may be nil.
func NewDispatcher(provider Provider, deliveries storage.DeliveryLog, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		provider:   provider,
		deliveries: deliveries,
		logger:     logger.With("component", "mailer", "provider", provider.Name()),
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
}

// SetTimeout changes the per-call timeout. Zero disables it.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// ProviderName returns the name of the underlying provider.
func (d *Dispatcher) ProviderName() string {
	return d.provider.Name()
}

// Send makes one delivery attempt. It never returns an error: provider
// failures and panics are captured in the Result.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (res Result) {
	res.Provider = d.provider.Name()

	ctx, span := telemetry.Tracer().Start(ctx, "mailer.Send")
	span.SetAttributes(
		attribute.String("mail.context", msg.Context),
		attribute.String("mail.provider", res.Provider),
	)
	start := d.now()

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Detail = fmt.Sprintf("provider panic: %v", r)
		}
		d.record(ctx, msg, res, start)
		if !res.Success {
			span.SetStatus(codes.Error, res.Detail)
		}
		span.End()
	}()

	if strings.TrimSpace(msg.To) == "" {
		res.Detail = "missing recipient address"
		return res
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	detail, err := d.provider.Send(callCtx, msg)
	res.Detail = detail
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (d *Dispatcher) record(ctx context.Context, msg Message, res Result, start time.Time) {
	metrics.ObserveSend(res.Provider, res.Success, start)

	entry := storage.DeliveryLogEntry{
		Context:   msg.Context,
		Provider:  res.Provider,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Status:    storage.DeliveryStatusSent,
		Detail:    res.Detail,
		CreatedAt: d.now().UTC(),
	}
	result := "success"
	if !res.Success {
		entry.Status = storage.DeliveryStatusFailed
		result = "failure"
		d.logger.ErrorContext(ctx, "email dispatch failed",
			"context", msg.Context, "to", msg.To, "detail", res.Detail)
	} else {
		d.logger.InfoContext(ctx, "email dispatched",
			"context", msg.Context, "to", msg.To, "detail", res.Detail)
	}
	metrics.EmailsSent.WithLabelValues(msg.Context, res.Provider, result).Inc()

	if d.deliveries == nil {
		return
	}
	// The delivery log write is not tied to the caller's cancellation.
	if err := d.deliveries.LogDelivery(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.WarnContext(ctx, "failed to record email delivery",
			"context", msg.Context, "error", err)
	}
}
