package google

import (
	"context"
	"errors"
	"testing"

	"github.com/bspgraph/bspgraph/graph/model"
)

var _ model.ChatModel = (*ChatModel)(nil)

type scriptedBackend struct {
	out   model.ChatOut
	err   error
	calls int

	messages []model.Message
	tools    []model.ToolSpec
}

func (s *scriptedBackend) generate(_ context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	s.calls++
	s.messages = messages
	s.tools = tools
	if s.err != nil {
		return model.ChatOut{}, s.err
	}
	return s.out, nil
}

func TestNewChatModel_DefaultModelName(t *testing.T) {
	if m := NewChatModel("key", ""); m.modelName != defaultModel {
		t.Errorf("modelName = %q, want %q", m.modelName, defaultModel)
	}
	if m := NewChatModel("key", "gemini-1.5-pro"); m.modelName != "gemini-1.5-pro" {
		t.Errorf("modelName = %q", m.modelName)
	}
}

func TestChat_ForwardsMessagesAndTools(t *testing.T) {
	b := &scriptedBackend{out: model.ChatOut{Text: "Paris."}}
	m := &ChatModel{modelName: defaultModel, backend: b}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "Be brief."},
		{Role: model.RoleUser, Content: "Capital of France?"},
	}
	tools := []model.ToolSpec{{Name: "lookup", Description: "Look something up"}}

	out, err := m.Chat(context.Background(), messages, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Paris." {
		t.Errorf("Text = %q", out.Text)
	}
	if len(b.messages) != 2 || len(b.tools) != 1 {
		t.Errorf("backend saw %d messages, %d tools", len(b.messages), len(b.tools))
	}
}

func TestChat_SafetyFilterErrorSurfaces(t *testing.T) {
	blocked := &SafetyFilterError{reason: "SAFETY", category: "HARM_CATEGORY_DANGEROUS_CONTENT"}
	m := &ChatModel{modelName: defaultModel, backend: &scriptedBackend{err: blocked}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)

	var sfe *SafetyFilterError
	if !errors.As(err, &sfe) {
		t.Fatalf("err = %v, want *SafetyFilterError", err)
	}
	if sfe.Category() != "HARM_CATEGORY_DANGEROUS_CONTENT" || sfe.Reason() != "SAFETY" {
		t.Errorf("Category() = %q, Reason() = %q", sfe.Category(), sfe.Reason())
	}
}

func TestChat_CancelledContext(t *testing.T) {
	b := &scriptedBackend{out: model.ChatOut{Text: "never"}}
	m := &ChatModel{modelName: defaultModel, backend: b}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if b.calls != 0 {
		t.Error("backend must not be called after cancellation")
	}
}

func TestSDKBackend_RequiresAPIKey(t *testing.T) {
	b := &sdkBackend{modelName: defaultModel}
	if _, err := b.generate(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil); err == nil {
		t.Error("want error for missing API key")
	}
}

func TestToGenaiSchema(t *testing.T) {
	t.Run("nil schema", func(t *testing.T) {
		if toGenaiSchema(nil) != nil {
			t.Error("nil schema should convert to nil")
		}
	})

	t.Run("properties and required", func(t *testing.T) {
		s := toGenaiSchema(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{"type": "string", "description": "City name"},
				"days":     map[string]interface{}{"type": "integer"},
			},
			"required": []interface{}{"location"},
		})
		if len(s.Properties) != 2 {
			t.Fatalf("got %d properties", len(s.Properties))
		}
		if s.Properties["location"].Description != "City name" {
			t.Errorf("location description = %q", s.Properties["location"].Description)
		}
		if len(s.Required) != 1 || s.Required[0] != "location" {
			t.Errorf("Required = %v", s.Required)
		}
	})
}
