package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

const (
	maxToolIterations  = 3
	assistantHistory   = 10
	assistantFallback  = "I'm having trouble right now. Please try again in a moment."
	assistantNoContent = "I need more information to help you."
)

// AssistantReply is the final assistant message of one turn.
type AssistantReply struct {
	Response  string
	ToolsUsed []string
}

type toolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

type assistantTool struct {
	spec ai.Tool
	run  toolHandler
}

type toolbox map[string]assistantTool

func (t toolbox) specs() []ai.Tool {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ai.Tool, 0, len(t))
	for _, name := range names {
		specs = append(specs, t[name].spec)
	}
	return specs
}

// historyMessages converts the last stored turns into model messages.
func historyMessages(history []models.ChatMessage) []ai.Message {
	if len(history) > assistantHistory {
		history = history[len(history)-assistantHistory:]
	}
	out := make([]ai.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.ChatRoleUser, models.ChatRoleAssistant:
			out = append(out, ai.Message{Role: msg.Role, Content: msg.Content})
		}
	}
	return out
}

// runToolLoop lets the model call tools for up to three rounds and then forces a plain answer.
func runToolLoop(ctx context.Context, llm ai.ChatCompleter, config AgentConfig, messages []ai.Message, tools toolbox, logger zerolog.Logger) (AssistantReply, error) {
	if llm == nil {
		return AssistantReply{}, externalError("openrouter", ErrProviderUnavailable)
	}

	used := make([]string, 0)
	specs := tools.specs()

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		res, err := chatOnce(ctx, llm, config, messages, specs)
		if err != nil {
			return AssistantReply{}, err
		}

		if len(res.ToolCalls) == 0 {
			return AssistantReply{Response: replyText(res.Content), ToolsUsed: used}, nil
		}

		messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: res.Content, ToolCalls: res.ToolCalls})
		for _, call := range res.ToolCalls {
			used = append(used, call.Name)
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				ToolCallID: call.ID,
				Content:    executeTool(ctx, tools, call, logger),
			})
		}
	}

	res, err := chatOnce(ctx, llm, config, messages, nil)
	if err != nil {
		return AssistantReply{}, err
	}
	return AssistantReply{Response: replyText(res.Content), ToolsUsed: used}, nil
}

func chatOnce(ctx context.Context, llm ai.ChatCompleter, config AgentConfig, messages []ai.Message, tools []ai.Tool) (ai.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	res, err := llm.Chat(callCtx, ai.ChatRequest{
		Model:       config.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
	})
	if err != nil {
		return ai.ChatResponse{}, externalError("openrouter", err)
	}
	return res, nil
}

// executeTool runs a tool call and encodes its result. Failures are reported to the model
// as {"error": ...} so it can answer without the data.
func executeTool(ctx context.Context, tools toolbox, call ai.ToolCall, logger zerolog.Logger) string {
	tool, ok := tools[call.Name]
	if !ok {
		return `{"error":"Unknown tool"}`
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Msg("invalid tool arguments")
			return `{"error":"Invalid tool arguments"}`
		}
	}

	result, err := tool.run(ctx, args)
	if err != nil {
		logger.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		result = map[string]string{"error": fmt.Sprintf("Could not run %s", call.Name)}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return `{"error":"Could not encode tool result"}`
	}
	return string(encoded)
}

func replyText(content string) string {
	if strings.TrimSpace(content) == "" {
		return assistantNoContent
	}
	return content
}

func stringArg(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func objectSchema(required []string, properties map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}
