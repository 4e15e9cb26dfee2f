// Package openai adapts the OpenAI chat-completions API to model.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/bspgraph/bspgraph/graph/model"
)

const defaultModel = "gpt-4o"

// ChatModel talks to OpenAI chat completions, retrying transient failures
// (network errors, 5xx, rate limits) before giving up. Rate-limit retries
// back off linearly with the attempt number.
type ChatModel struct {
	modelName  string
	backend    backend
	maxRetries int
	retryDelay time.Duration
}

// backend is the seam between retry/conversion logic and the SDK call;
// tests substitute a scripted implementation.
type backend interface {
	complete(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel returns a ChatModel for the given model name (empty selects
// gpt-4o), configured for 3 retries with a one-second base delay.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		modelName:  modelName,
		backend:    &sdkBackend{apiKey: apiKey, modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.backend.complete(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransient(err) {
			return model.ChatOut{}, err
		}
		if attempt >= m.maxRetries {
			break
		}

		delay := m.retryDelay
		if isRateLimit(err) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}
	return model.ChatOut{}, fmt.Errorf("OpenAI API failed after %d retries: %w", m.maxRetries, lastErr)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if isRateLimit(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

type rateLimitError struct {
	message string
}

func (e *rateLimitError) Error() string { return e.message }

// sdkBackend issues real chat-completion calls through the official SDK.
type sdkBackend struct {
	apiKey    string
	modelName string
}

func (b *sdkBackend) complete(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if b.apiKey == "" {
		return model.ChatOut{}, errors.New("OpenAI API key is required")
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(b.modelName),
		Messages: toMessageParams(messages),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}

	client := sdk.NewClient(option.WithAPIKey(b.apiKey))
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	return fromCompletion(resp), nil
}

func toMessageParams(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out[i] = sdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			out[i] = sdk.AssistantMessage(msg.Content)
		default:
			out[i] = sdk.UserMessage(msg.Content)
		}
	}
	return out
}

func toToolParams(tools []model.ToolSpec) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		}
	}
	return out
}

func fromCompletion(resp *sdk.ChatCompletion) model.ChatOut {
	var out model.ChatOut
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:  tc.Function.Name,
			Input: parseArguments(tc.Function.Arguments),
		})
	}
	return out
}

// parseArguments decodes the model's JSON argument string. A payload that
// is not a JSON object is preserved raw under "_raw" rather than dropped.
func parseArguments(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]interface{}{"_raw": raw}
	}
	return out
}
