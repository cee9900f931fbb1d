package mailer

import (
	"context"
	"log/slog"
)

// LogProvider writes the envelope of every message to a logger instead of
// delivering it. It is meant for development.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates a LogProvider.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

// Name returns the provider identifier.
func (p *LogProvider) Name() string { return "log" }

// Send logs msg and always succeeds.
func (p *LogProvider) Send(ctx context.Context, msg Message) (string, error) {
	p.logger.InfoContext(ctx, "email (not delivered)",
		"to", msg.To,
		"from_name", msg.FromName,
		"subject", msg.Subject,
		"context", msg.Context,
		"html_bytes", len(msg.HTML),
	)
	return "logged", nil
}
