package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teachmate",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of model gateway requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teachmate",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed model gateway requests",
	}, []string{"model", "operation"})
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig defines configuration for the OpenAI-compatible gateway.
type OpenRouterConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32
	Timeout        time.Duration
	Referer        string
	Title          string
	Logger         zerolog.Logger
}

// OpenRouterClient implements Client against an OpenAI-compatible chat and embeddings API.
type OpenRouterClient struct {
	client *openai.Client
	cfg    OpenRouterConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenRouterClient builds a client using the provided configuration.
func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "anthropic/claude-3.5-sonnet"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "openai/text-embedding-3-small"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: headerTransport{
			base:    http.DefaultTransport,
			referer: cfg.Referer,
			title:   cfg.Title,
		},
	}

	return &OpenRouterClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/teachmate-api/pkg/ai/openrouter"),
		logger: logger.With().Str("component", "ai_gateway").Logger(),
	}, nil
}

// Chat sends a completion request and returns the first choice.
func (c *OpenRouterClient) Chat(parent context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.ChatModel
	}
	ctx, span := c.tracer.Start(parent, "ai.chat", trace.WithAttributes(
		attribute.String("model", model),
		attribute.Int("tools", len(req.Tools)),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    toOpenAIMessages(req.Messages),
	}
	if request.MaxTokens == 0 {
		request.MaxTokens = c.cfg.MaxTokens
	}
	if request.Temperature == 0 {
		request.Temperature = c.cfg.Temperature
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, tool := range req.Tools {
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(model, "chat").Observe(time.Since(start).Seconds())
	if err != nil {
		return ChatResponse{}, c.fail(span, model, "chat", fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, c.fail(span, model, "chat", fmt.Errorf("no choices returned from model"))
	}

	choice := resp.Choices[0]
	out := ChatResponse{
		Content:      strings.TrimSpace(choice.Message.Content),
		FinishReason: string(choice.FinishReason),
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	c.logger.Debug().Str("model", model).Int("tokens", resp.Usage.TotalTokens).Int("tool_calls", len(out.ToolCalls)).Msg("chat completion")
	return out, nil
}

// Embed returns the embedding of text using the configured embedding model.
func (c *OpenRouterClient) Embed(parent context.Context, text string) ([]float32, error) {
	model := c.cfg.EmbeddingModel
	ctx, span := c.tracer.Start(parent, "ai.embed", trace.WithAttributes(attribute.String("model", model)))
	defer span.End()

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	aiDuration.WithLabelValues(model, "embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.fail(span, model, "embed", fmt.Errorf("create embedding: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, c.fail(span, model, "embed", fmt.Errorf("no embedding returned"))
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenRouterClient) fail(span trace.Span, model, operation string, err error) error {
	aiFailures.WithLabelValues(model, operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

// headerTransport adds the attribution headers the gateway uses for app ranking.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer == "" && t.title == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	if t.referer != "" {
		clone.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		clone.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(clone)
}
