// Package emit provides pluggable structured-event sinks for engine runs.
package emit

// Event is one structured observability record from a run: a superstep or
// vertex lifecycle transition, a contained failure, or a run boundary.
type Event struct {
	// RunID identifies the invocation that produced the event.
	RunID string

	// Step is the 1-indexed superstep the event belongs to. Zero for
	// run_start and for the per-vertex events (vertex_start, vertex_done,
	// vertex_error); run_complete carries the number of supersteps run.
	Step int

	// VertexID names the vertex the event concerns; empty for superstep-
	// and run-level events.
	VertexID string

	// Msg names the transition: run_start, superstep_start, vertex_start,
	// vertex_done, vertex_error, vertex_failed, superstep_merge,
	// history_sink_error, run_complete.
	Msg string

	// Meta carries event-specific fields such as duration_ms, error,
	// active_count, next_active_count, termination.
	Meta map[string]interface{}
}
