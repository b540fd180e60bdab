package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("pinecone is not configured")

// Client is the subset of the Pinecone API used for retrieval and indexing.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	Upsert(ctx context.Context, req UpsertRequest) (*UpsertResponse, error)
	Delete(ctx context.Context, req DeleteRequest) error
}

// Config holds index connection settings.
type Config struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	IndexName  string
	// Host skips index discovery when set. A scheme may be included.
	Host    string
	Timeout time.Duration
}

type client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
	tracer trace.Tracer

	mu   sync.Mutex
	host string
}

// New constructs a Pinecone REST client.
func New(cfg Config, logger zerolog.Logger) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.IndexName) == "" && strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("pinecone index name or host is required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-01"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "pinecone").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/teachmate-api/pkg/pinecone"),
		host:   strings.TrimSpace(cfg.Host),
	}, nil
}

// Vector is a single embedding with metadata.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type UpsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector,omitempty"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}

type DeleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
}

// MetadataString returns a string metadata value or "".
func (m QueryMatch) MetadataString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	switch v := m.Metadata[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (c *client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	ctx, span := c.tracer.Start(ctx, "pinecone.query", trace.WithAttributes(
		attribute.Int("top_k", req.TopK),
		attribute.String("namespace", req.Namespace),
	))
	defer span.End()

	var out QueryResponse
	if err := c.dataPlane(ctx, "/query", req, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("matches", len(out.Matches)))
	return &out, nil
}

func (c *client) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResponse, error) {
	if len(req.Vectors) == 0 {
		return &UpsertResponse{}, nil
	}
	ctx, span := c.tracer.Start(ctx, "pinecone.upsert", trace.WithAttributes(
		attribute.Int("vectors", len(req.Vectors)),
	))
	defer span.End()

	var out UpsertResponse
	if err := c.dataPlane(ctx, "/vectors/upsert", req, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &out, nil
}

func (c *client) Delete(ctx context.Context, req DeleteRequest) error {
	if len(req.IDs) == 0 {
		return nil
	}
	return c.dataPlane(ctx, "/vectors/delete", req, nil)
}

func (c *client) dataPlane(ctx context.Context, path string, body any, out any) error {
	host, err := c.resolveHost(ctx)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, host+path, body, out)
}

// resolveHost looks up the index host once and caches it.
func (c *client) resolveHost(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host == "" {
		var desc struct {
			Host string `json:"host"`
		}
		url := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes/" + c.cfg.IndexName
		if err := c.doJSON(ctx, http.MethodGet, url, nil, &desc); err != nil {
			return "", fmt.Errorf("describe index: %w", err)
		}
		if strings.TrimSpace(desc.Host) == "" {
			return "", fmt.Errorf("pinecone describe_index returned empty host")
		}
		c.host = desc.Host
		c.logger.Info().Str("host", c.host).Msg("pinecone index resolved")
	}

	host := strings.TrimRight(c.host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host, nil
}

func (c *client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pinecone http %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pinecone decode: %w", err)
	}
	return nil
}
