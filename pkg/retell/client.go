package retell

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotConfigured is returned when the API key is missing.
	ErrNotConfigured = errors.New("retell is not configured")
	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Config holds voice provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
}

// WebCallRequest asks the provider to open a browser voice session for an agent.
type WebCallRequest struct {
	AgentID  string         `json:"agent_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WebCall is the provider's answer to a web call request.
type WebCall struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	AgentID     string `json:"agent_id"`
	CallStatus  string `json:"call_status"`
}

// Caller creates web calls.
type Caller interface {
	CreateWebCall(ctx context.Context, req WebCallRequest) (WebCall, error)
}

// Client talks to the Retell REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// New constructs a Retell client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.retellai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("github.com/noah-isme/teachmate-api/pkg/retell"),
		logger: logger.With().Str("component", "retell").Logger(),
	}, nil
}

// CreateWebCall registers a web call and returns the provider call id and access token.
func (c *Client) CreateWebCall(ctx context.Context, req WebCallRequest) (WebCall, error) {
	ctx, span := c.tracer.Start(ctx, "retell.create_web_call", trace.WithAttributes(
		attribute.String("agent_id", req.AgentID),
	))
	defer span.End()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return WebCall{}, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v2/create-web-call"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return WebCall{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WebCall{}, fmt.Errorf("create web call: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("retell http %d: %s", resp.StatusCode, string(raw))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WebCall{}, err
	}

	var call WebCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return WebCall{}, fmt.Errorf("retell decode: %w", err)
	}
	if call.CallID == "" || call.AccessToken == "" {
		return WebCall{}, fmt.Errorf("retell returned an incomplete web call")
	}

	c.logger.Info().Str("retell_call_id", call.CallID).Msg("web call created")
	return call, nil
}

// VerifySignature checks a hex HMAC-SHA256 of the body. Verification is skipped when no
// webhook secret is configured.
func (c *Client) VerifySignature(body []byte, signature string) error {
	return VerifySignature(c.cfg.WebhookSecret, body, signature)
}

// VerifySignature checks body against a hex HMAC-SHA256 signature using secret.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}
