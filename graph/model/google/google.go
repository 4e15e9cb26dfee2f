// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bspgraph/bspgraph/graph/model"
)

const defaultModel = "gemini-2.5-flash"

// ChatModel talks to Gemini. Chat returns whatever error its backend
// returns. The SDK backend does not build a *SafetyFilterError: every error
// from GenerateContent, whatever its cause, is returned wrapped as
// "google API error: ...".
type ChatModel struct {
	modelName string
	backend   backend
}

// backend is the seam between conversion logic and the SDK call; tests
// substitute a scripted implementation.
type backend interface {
	generate(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel returns a ChatModel for the given model name (empty selects
// a current Flash model).
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
	return m.backend.generate(ctx, messages, tools)
}

// sdkBackend issues real GenerateContent calls through the official SDK.
// The genai client is built per call: it holds a gRPC connection whose
// lifetime would otherwise outlive the request's ctx.
type sdkBackend struct {
	apiKey    string
	modelName string
}

func (b *sdkBackend) generate(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if b.apiKey == "" {
		return model.ChatOut{}, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(b.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("create google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(b.modelName)
	if len(tools) > 0 {
		gm.Tools = toGenaiTools(tools)
	}

	resp, err := gm.GenerateContent(ctx, toParts(messages)...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	return fromResponse(resp), nil
}

// toParts flattens the conversation into text parts. Gemini has no
// per-message role on this path; system instructions ride along as
// ordinary text.
func toParts(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func toGenaiTools(tools []model.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGenaiSchema converts the top level of a JSON-Schema object into a
// genai.Schema: property names, scalar types, descriptions, and required
// keys. Nested object/array schemas keep only their type.
func toGenaiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			ps := &genai.Schema{}
			if ts, ok := prop["type"].(string); ok {
				ps.Type = schemaType(ts)
			}
			if desc, ok := prop["description"].(string); ok {
				ps.Description = desc
			}
			out.Properties[name] = ps
		}
	}

	switch req := schema["required"].(type) {
	case []string:
		out.Required = req
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}

	return out
}

func schemaType(jsonType string) genai.Type {
	switch jsonType {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}

func fromResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out
}

// SafetyFilterError reports a Gemini safety-filter block. Check for it
// with errors.As to separate "the model refused" from "the call failed".
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category names the safety category that triggered the block.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason reports why the content was blocked (e.g. "SAFETY").
func (e *SafetyFilterError) Reason() string { return e.reason }
