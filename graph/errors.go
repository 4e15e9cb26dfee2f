package graph

import "fmt"

// ConfigError, CompileError and ValidationError are small structs carrying a
// Code and Message, so callers can either match on Go type (errors.As) or on
// the stable Code string (useful across process boundaries, e.g. in emitted
// log lines). MergeError carries a Reason and the offending Key instead.

// ConfigError is raised by Graph construction APIs (AddNode,
// AddConditionalNode, AddEdge, AddConditionalEdges), including AddEdge's
// check of the at-most-one-Conditional-child invariant. It leaves the graph
// unchanged.
type ConfigError struct {
	Code    string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error [%s]: %s", e.Code, e.Message)
}

func configErrorf(code, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CompileError is raised by Compile (unreachable vertex, missing START). Invoke
// compiles an un-compiled graph itself and returns Compile's error if any.
type CompileError struct {
	Code    string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error [%s]: %s", e.Code, e.Message)
}

func compileErrorf(code, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationError is raised when a vertex's result has the wrong shape: a
// Standard vertex returning a delta key absent from the initial state, a
// Conditional vertex returning a routing key absent from its routing map,
// or a Conditional vertex's fn returning a key that doesn't resolve to a
// registered target. It is propagated and aborts the invocation; it is
// never caught as a node failure.
type ValidationError struct {
	Code     string
	Message  string
	VertexID string
}

func (e *ValidationError) Error() string {
	if e.VertexID != "" {
		return fmt.Sprintf("validation error [%s] at vertex %q: %s", e.Code, e.VertexID, e.Message)
	}
	return fmt.Sprintf("validation error [%s]: %s", e.Code, e.Message)
}

func validationErrorf(vertexID, code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...), VertexID: vertexID}
}

// MergeReason distinguishes the two failure modes Merge can raise.
type MergeReason string

const (
	ReasonUnknownType  MergeReason = "unknown_type"
	ReasonTypeMismatch MergeReason = "type_mismatch"
)

// MergeError is raised by Merge when a fan-in contribution has an
// unrepresentable type or a type family that disagrees with the rest of the
// contributions to the same key. Propagated; aborts the invocation.
type MergeError struct {
	Reason MergeReason
	Key    string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge error [%s] at key %q", e.Reason, e.Key)
}

// TerminationReason reports why Invoke's superstep loop stopped.
// BudgetExceeded is not an error: it is reported as a result value
// alongside the last committed snapshot and a nil error, never raised.
type TerminationReason int

const (
	ReasonCompleted TerminationReason = iota
	ReasonBudgetExceeded
)

func (r TerminationReason) String() string {
	if r == ReasonBudgetExceeded {
		return "BudgetExceeded"
	}
	return "Completed"
}

// internalNodeErrorKey is the delta key the engine uses to record a
// Standard vertex's raised error.
const internalNodeErrorKey = "INTERNAL_NODE_ERROR"
