package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultRelayEndpoint is the send endpoint of the EmailJS REST API.
const DefaultRelayEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// maxDetailBytes caps how much of a relay response is kept as detail.
const maxDetailBytes = 4 << 10

// RelayConfig holds the credentials of a transactional-email HTTP API.
type RelayConfig struct {
	Endpoint    string
	ServiceID   string
	TemplateID  string
	UserID      string
	AccessToken string
}

// RelayProvider posts each message to a transactional-email HTTP API. The
// payload follows the EmailJS send contract: the provider-side template is
// expected to output message_html verbatim.
type RelayProvider struct {
	config RelayConfig
	client *http.Client
}

// NewRelayProvider creates a RelayProvider. A nil client uses an
// otelhttp-instrumented default client.
func NewRelayProvider(config RelayConfig, client *http.Client) *RelayProvider {
	if config.Endpoint == "" {
		config.Endpoint = DefaultRelayEndpoint
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &RelayProvider{config: config, client: client}
}

// Name returns the provider identifier.
func (p *RelayProvider) Name() string { return "relay" }

type relayRequest struct {
	ServiceID      string        `json:"service_id"`
	TemplateID     string        `json:"template_id"`
	UserID         string        `json:"user_id"`
	AccessToken    string        `json:"accessToken,omitempty"`
	TemplateParams relayTemplate `json:"template_params"`
}

type relayTemplate struct {
	ToEmail     string `json:"to_email"`
	FromName    string `json:"from_name"`
	Subject     string `json:"subject"`
	MessageHTML string `json:"message_html"`
	MessageText string `json:"message_text"`
	Context     string `json:"context"`
}

// Send posts msg to the relay. Any non-2xx response is a failure.
func (p *RelayProvider) Send(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(relayRequest{
		ServiceID:   p.config.ServiceID,
		TemplateID:  p.config.TemplateID,
		UserID:      p.config.UserID,
		AccessToken: p.config.AccessToken,
		TemplateParams: relayTemplate{
			ToEmail:     msg.To,
			FromName:    msg.FromName,
			Subject:     msg.Subject,
			MessageHTML: msg.HTML,
			MessageText: msg.Text,
			Context:     msg.Context,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling relay: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	detail := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return detail, fmt.Errorf("relay responded %d: %s", resp.StatusCode, detail)
	}
	if detail == "" {
		detail = resp.Status
	}
	return detail, nil
}
