package service

import (
	"context"
	"time"

	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

// AgentConfig tunes a model-backed agent.
type AgentConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func (c AgentConfig) withDefaults(model string, temperature float32, maxTokens int, timeout time.Duration) AgentConfig {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == 0 {
		c.Temperature = temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = maxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
	return c
}

// complete sends one JSON-only completion with the agent's bounds applied.
func (c AgentConfig) complete(ctx context.Context, client ai.ChatCompleter, system, prompt string) (string, error) {
	if client == nil {
		return "", externalError("openrouter", ErrProviderUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := client.Chat(callCtx, ai.ChatRequest{
		Model: c.Model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: prompt},
		},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return "", externalError("openrouter", err)
	}
	return res.Content, nil
}

func recordAgentCall(agent string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	observability.AgentCalls().WithLabelValues(agent, outcome).Inc()
	observability.AgentLatency().WithLabelValues(agent).Observe(time.Since(started).Seconds())
}
