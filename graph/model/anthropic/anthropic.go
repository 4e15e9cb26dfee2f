// Package anthropic adapts the Claude Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bspgraph/bspgraph/graph/model"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// ChatModel talks to Claude. Anthropic keeps the system prompt out of the
// message array, so Chat splits system messages off before converting the
// remaining turns.
type ChatModel struct {
	modelName string
	backend   backend
}

// backend is the seam between conversion logic and the SDK call; tests
// substitute a scripted implementation.
type backend interface {
	complete(ctx context.Context, system string, turns []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel returns a ChatModel for the given model name (empty selects
// a current Sonnet). The key is checked at call time, not here, so a
// missing key surfaces as a Chat error rather than a construction panic.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		modelName: modelName,
		backend:   &sdkBackend{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	system, turns := splitSystem(messages)
	return m.backend.complete(ctx, system, turns, tools)
}

// splitSystem pulls system messages out of the conversation, joining
// multiple ones with blank lines, and returns the remaining turns.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system string
	var turns []model.Message
	for _, msg := range messages {
		if msg.Role != model.RoleSystem {
			turns = append(turns, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, turns
}

// sdkBackend issues real Messages API calls through the official SDK.
type sdkBackend struct {
	apiKey    string
	modelName string
}

func (b *sdkBackend) complete(ctx context.Context, system string, turns []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if b.apiKey == "" {
		return model.ChatOut{}, errors.New("anthropic API key is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(b.modelName),
		Messages:  toMessageParams(turns),
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}

	client := sdk.NewClient(option.WithAPIKey(b.apiKey))
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic API error: %w", err)
	}
	return fromMessage(resp), nil
}

func toMessageParams(turns []model.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(turns))
	for i, msg := range turns {
		if msg.Role == model.RoleAssistant {
			out[i] = sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content))
			continue
		}
		// User, and any nonstandard role (system was split off earlier).
		out[i] = sdk.NewUserMessage(sdk.NewTextBlock(msg.Content))
	}
	return out
}

func toToolParams(tools []model.ToolSpec) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		var properties any
		var required []string
		if t.Schema != nil {
			properties = t.Schema["properties"]
			required = requiredKeys(t.Schema["required"])
		}
		out[i] = sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		}
	}
	return out
}

// requiredKeys accepts the two shapes a schema's "required" field shows up
// in after JSON round-trips: []string or []interface{} of strings.
func requiredKeys(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fromMessage(resp *sdk.Message) model.ChatOut {
	var out model.ChatOut
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case sdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  b.Name,
				Input: toolInput(b.Input),
			})
		}
	}
	return out
}

func toolInput(input interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"_raw": input}
}
