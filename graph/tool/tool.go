// Package tool defines the callable-tool contract an agent vertex can hand
// to a chat model, plus a mock and an HTTP implementation.
package tool

import "context"

// Tool is an action a model may request during a vertex's turn: a web
// search, a database query, an API call. The vertex executes the call and
// feeds the result back into the conversation.
//
// Implementations must respect ctx cancellation and return a descriptive
// error for invalid input; the calling vertex decides whether a tool error
// fails the vertex or is routed around.
type Tool interface {
	// Name is the identifier the model uses to request this tool. It must
	// match the corresponding ToolSpec name handed to the model:
	// lowercase, underscore-separated ("search_web", "get_weather").
	Name() string

	// Call executes the tool. input holds the model-provided parameters
	// (nil for parameterless tools) and should match the schema advertised
	// in the tool's spec. The result is structured data for the model to
	// read on the next turn.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
