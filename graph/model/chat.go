// Package model defines the chat-completion contract an agent vertex uses
// to talk to an LLM, with adapters for Anthropic, OpenAI, and Google in
// subpackages. The engine itself never imports this package; it exists for
// vertex functions that embed a model call.
package model

import "context"

// ChatModel abstracts a chat-completion provider. An adapter converts the
// portable Message/ToolSpec shapes into the provider's request format,
// issues the call, and translates the response (text and/or tool-call
// requests) back into a ChatOut.
//
// Implementations must respect ctx cancellation and surface provider
// errors unwrapped enough for errors.As to find them.
type ChatModel interface {
	// Chat sends the conversation so far, plus the tools the model may
	// request, and returns the model's reply. tools may be nil. The reply
	// may hold text, tool calls, or both.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn of a conversation in the role/content shape shared
// by every major provider.
type Message struct {
	// Role identifies the sender; use the Role* constants.
	Role string

	// Content is the message text. May be empty on turns that only carry
	// tool calls.
	Content string
}

// Conversation roles.
const (
	// RoleSystem sets context or instructions for the model.
	RoleSystem = "system"

	// RoleUser marks input from the user.
	RoleUser = "user"

	// RoleAssistant marks a prior model reply.
	RoleAssistant = "assistant"
)

// ToolSpec describes one tool the model may request during a turn. The
// model matches a ToolCall's Name against these specs.
type ToolSpec struct {
	// Name uniquely identifies the tool: lowercase, underscore-separated.
	Name string

	// Description tells the model what the tool does; it is the main
	// signal the model uses to decide when to call it.
	Description string

	// Schema is a JSON-Schema object describing the tool's parameters.
	// Optional for parameterless tools.
	Schema map[string]interface{}
}

// ChatOut is a model reply: direct text, requested tool calls, or both.
type ChatOut struct {
	// Text is the generated reply. Empty when the model only requests
	// tools.
	Text string

	// ToolCalls lists the tools the model wants invoked before it can
	// finish answering. Empty for a direct text reply.
	ToolCalls []ToolCall
}

// ToolCall is one tool invocation requested by the model. The caller
// executes the named tool with Input and sends the result back as a new
// message on the next Chat turn.
type ToolCall struct {
	// Name matches a ToolSpec.Name from the tools offered on the request.
	Name string

	// Input holds the model-chosen parameters, shaped per the tool's
	// schema. Nil for parameterless tools.
	Input map[string]interface{}
}
