package graph

import (
	"time"

	"github.com/bspgraph/bspgraph/graph/emit"
	"github.com/bspgraph/bspgraph/graph/store"
)

// Option is a functional option for configuring an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	maxSupersteps int
	vertexTimeout time.Duration
	emitter       emit.Emitter
	metrics       *EngineMetrics
	historySink   store.HistorySink
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		maxSupersteps: 100,
		emitter:       &emit.NullEmitter{},
	}
}

// WithMaxSupersteps overrides the default superstep budget (100). A run
// that still has active vertices when the budget is reached exits with
// ReasonBudgetExceeded rather than continuing forever; the budget is the
// engine's only cycle-detection mechanism.
func WithMaxSupersteps(n int) Option {
	return func(o *engineOptions) { o.maxSupersteps = n }
}

// WithVertexTimeout bounds every vertex invocation that doesn't set its own
// NodePolicy.Timeout. Zero (the default) means unbounded: a vertex may block
// the barrier indefinitely, since the engine never cancels an in-flight
// vertex function on its own.
func WithVertexTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.vertexTimeout = d }
}

// WithEmitter attaches an observability sink that receives a structured
// Event for every superstep and vertex lifecycle transition. Default is
// emit.NullEmitter{}.
func WithEmitter(e emit.Emitter) Option {
	return func(o *engineOptions) { o.emitter = e }
}

// WithMetrics attaches Prometheus-compatible instrumentation. Default is
// nil (disabled).
func WithMetrics(m *EngineMetrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithHistorySink mirrors every committed snapshot to an external store for
// diagnostics. The sink is write-only: no Invoke code path ever reads from
// it, and it is not a checkpoint/resume mechanism. Default is nil
// (disabled); a nil sink never changes Invoke's result.
func WithHistorySink(s store.HistorySink) Option {
	return func(o *engineOptions) { o.historySink = s }
}
