package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bspgraph/bspgraph/graph/emit"
)

// Engine drives a compiled Graph through bulk-synchronous supersteps. A
// Graph is pure topology; Engine holds the mutable run state
// (current snapshot, step count, history) and is not safe to share across
// concurrent Invoke calls — construct one Engine per run, or serialize
// Invoke calls on a shared Engine.
type Engine struct {
	graph *Graph
	opts  engineOptions

	mu        sync.Mutex
	runID     string
	state     State
	stepCount int
	history   []State
}

// NewEngine constructs an Engine bound to g, applying opts over the default
// configuration (maxSupersteps 100, NullEmitter, no timeout, no metrics, no
// history sink). g need not be compiled yet: Invoke calls g.Compile()
// itself (idempotent) and surfaces any CompileError.
func NewEngine(g *Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, configErrorf("nil_graph", "graph must not be nil")
	}
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSupersteps <= 0 {
		return nil, configErrorf("invalid_budget", "maxSupersteps must be positive, got %d", o.maxSupersteps)
	}
	return &Engine{
		graph: g,
		opts:  o,
		state: g.InitialState(),
	}, nil
}

// RunResult is the outcome of one Invoke call.
type RunResult struct {
	FinalState  State
	StepCount   int
	Termination TerminationReason
	RunID       string
}

// State returns the most recently committed snapshot. Before the first
// Invoke call this is the graph's initial state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StepCount returns the number of supersteps completed by the most recent
// (or in-progress) Invoke call.
func (e *Engine) StepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepCount
}

// History returns the initial snapshot followed by every snapshot committed
// by the most recent Invoke call, oldest first.
func (e *Engine) History() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, len(e.history))
	copy(out, e.history)
	return out
}

// vertexOutcome is the superstep-local result of running one active vertex.
// failed marks a contained NodeFailure (the vertex's msg still joins the
// merge bag, carrying INTERNAL_NODE_ERROR). abortErr is set instead when
// the vertex's result violates a structural invariant (e.g. a delta key
// absent from the initial state): that is a ValidationError that must
// abort the whole invocation, never merged.
type vertexOutcome struct {
	vertexID string
	msg      Message
	failed   bool
	err      error
	abortErr error
}

// Invoke runs the graph to completion or budget exhaustion. It requires g to be compiled (or compilable) first; a graph that fails
// Compile surfaces that CompileError here rather than panicking.
func (e *Engine) Invoke(ctx context.Context) (RunResult, error) {
	if err := e.graph.Compile(); err != nil {
		return RunResult{}, err
	}

	e.mu.Lock()
	e.runID = uuid.NewString()
	e.state = e.graph.InitialState()
	e.stepCount = 0
	e.history = []State{e.state}
	runID := e.runID
	initialKeys := e.state.Keys()
	e.mu.Unlock()

	active, err := e.initialActiveSet(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}

	e.opts.emitter.Emit(emit.Event{RunID: runID, Msg: "run_start"})

	for {
		if len(active) == 0 {
			return e.finish(ctx, runID, ReasonCompleted), nil
		}

		superstepStart := time.Now()
		ordered := sortedKeys(active)

		e.opts.emitter.Emit(emit.Event{
			RunID: runID, Step: e.stepCount + 1, Msg: "superstep_start",
			Meta: map[string]interface{}{"active_count": len(ordered)},
		})

		outcomes := e.runSuperstep(ctx, runID, ordered, initialKeys)

		for _, o := range outcomes {
			if o.abortErr != nil {
				return RunResult{}, o.abortErr
			}
		}

		msgs := make([]Message, 0, len(outcomes))
		for _, o := range outcomes {
			msgs = append(msgs, o.msg)
			if o.failed {
				e.opts.emitter.Emit(emit.Event{
					RunID: runID, Step: e.stepCount + 1, VertexID: o.vertexID,
					Msg: "vertex_failed", Meta: map[string]interface{}{"error": o.err.Error()},
				})
				if e.opts.metrics != nil {
					e.opts.metrics.RecordNodeFailure(runID, o.vertexID)
				}
			}
		}

		merged, err := Merge(e.State(), msgs)
		if err != nil {
			if me, ok := err.(*MergeError); ok && e.opts.metrics != nil {
				e.opts.metrics.RecordMergeConflict(runID, me.Reason)
			}
			return RunResult{}, err
		}

		e.mu.Lock()
		e.state = merged
		e.history = append(e.history, merged)
		e.mu.Unlock()

		if e.opts.historySink != nil {
			snap := nativeSnapshot(merged)
			if err := e.opts.historySink.SaveSnapshot(ctx, runID, e.stepCount+1, snap); err != nil {
				e.opts.emitter.Emit(emit.Event{
					RunID: runID, Step: e.stepCount + 1, Msg: "history_sink_error",
					Meta: map[string]interface{}{"error": err.Error()},
				})
			}
		}

		nextActive, err := e.computeNextActive(ctx, runID, ordered)
		if err != nil {
			return RunResult{}, err
		}

		e.mu.Lock()
		e.stepCount++
		step := e.stepCount
		e.mu.Unlock()

		if e.opts.metrics != nil {
			e.opts.metrics.RecordSuperstep(runID, len(ordered), time.Since(superstepStart))
		}
		e.opts.emitter.Emit(emit.Event{
			RunID: runID, Step: step, Msg: "superstep_merge",
			Meta: map[string]interface{}{"next_active_count": len(nextActive)},
		})

		if step >= e.opts.maxSupersteps {
			if len(nextActive) == 0 {
				return e.finish(ctx, runID, ReasonCompleted), nil
			}
			return e.finish(ctx, runID, ReasonBudgetExceeded), nil
		}

		active = nextActive
	}
}

func (e *Engine) finish(ctx context.Context, runID string, reason TerminationReason) RunResult {
	if reason == ReasonBudgetExceeded && e.opts.metrics != nil {
		e.opts.metrics.RecordBudgetExceeded(runID)
	}
	e.opts.emitter.Emit(emit.Event{
		RunID: runID, Step: e.StepCount(), Msg: "run_complete",
		Meta: map[string]interface{}{"termination": reason.String()},
	})
	_ = e.opts.emitter.Flush(ctx)
	return RunResult{
		FinalState:  e.State(),
		StepCount:   e.StepCount(),
		Termination: reason,
		RunID:       runID,
	}
}

// initialActiveSet resolves START's single destination into the first
// superstep's active set. START may route directly to
// END, in which case the run completes with zero supersteps.
func (e *Engine) initialActiveSet(ctx context.Context, runID string) (map[string]struct{}, error) {
	target, ok := e.graph.StartTarget()
	if !ok {
		return nil, compileErrorf("missing_start", "graph has no START edge")
	}
	if target == End {
		return map[string]struct{}{}, nil
	}
	v, _ := e.graph.Vertex(target)
	if v.Kind() == ConditionalVertex {
		resolved, err := e.resolveConditionalChain(ctx, runID, target)
		if err != nil {
			return nil, err
		}
		if resolved == "" || resolved == End {
			return map[string]struct{}{}, nil
		}
		return map[string]struct{}{resolved: {}}, nil
	}
	return map[string]struct{}{target: {}}, nil
}

// runSuperstep fans out every active vertex on its own goroutine and
// collects results at the barrier: isolate each invocation, wait for all,
// and sort outcomes by vertex id afterward for deterministic downstream
// processing.
func (e *Engine) runSuperstep(ctx context.Context, runID string, active []string, initialKeys map[string]bool) []vertexOutcome {
	results := make(chan vertexOutcome, len(active))
	var wg sync.WaitGroup

	for _, id := range active {
		wg.Add(1)
		go func(vertexID string) {
			defer wg.Done()
			results <- e.runVertex(ctx, runID, vertexID, initialKeys)
		}(id)
	}

	wg.Wait()
	close(results)

	out := make([]vertexOutcome, 0, len(active))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].vertexID < out[j].vertexID })
	return out
}

// runVertex invokes one Standard vertex's function against the current
// state, applying its timeout if configured. Errors returned by the function,
// a panic inside it, or a timeout, are contained as a NodeFailure: the vertex's
// status becomes Failed and it contributes a Message carrying only
// INTERNAL_NODE_ERROR, never aborting the run.
func (e *Engine) runVertex(ctx context.Context, runID, vertexID string, initialKeys map[string]bool) vertexOutcome {
	v, _ := e.graph.Vertex(vertexID)
	v.setStatus(StatusRunning)

	vctx := ctx
	var cancel context.CancelFunc
	timeout := v.Policy.Timeout
	if timeout <= 0 {
		timeout = e.opts.vertexTimeout
	}
	if timeout > 0 {
		vctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	e.opts.emitter.Emit(emit.Event{RunID: runID, VertexID: vertexID, Msg: "vertex_start"})

	snapshot := e.State().View()
	delta, err := runWithTimeout(vctx, v, snapshot)
	dur := time.Since(start)

	if err != nil {
		v.setStatus(StatusFailed)
		msg := Message{
			VertexID: vertexID,
			Kind:     StandardVertex,
			Payload:  map[string]Value{internalNodeErrorKey: StringValue(err.Error())},
		}
		v.setLastResult(msg)
		e.opts.emitter.Emit(emit.Event{
			RunID: runID, VertexID: vertexID, Msg: "vertex_error",
			Meta: map[string]interface{}{"duration_ms": dur.Milliseconds(), "error": err.Error()},
		})
		return vertexOutcome{vertexID: vertexID, msg: msg, failed: true, err: err}
	}

	for k := range delta {
		if !initialKeys[k] {
			verr := validationErrorf(vertexID, "unknown_delta_key",
				"vertex %q returned delta key %q not present in the graph's initial state", vertexID, k)
			v.setStatus(StatusFailed)
			return vertexOutcome{vertexID: vertexID, abortErr: verr}
		}
	}

	v.setStatus(StatusSuccess)
	msg := Message{VertexID: vertexID, Kind: StandardVertex, Payload: delta}
	v.setLastResult(msg)
	e.opts.emitter.Emit(emit.Event{
		RunID: runID, VertexID: vertexID, Msg: "vertex_done",
		Meta: map[string]interface{}{"duration_ms": dur.Milliseconds()},
	})
	return vertexOutcome{vertexID: vertexID, msg: msg}
}

// runWithTimeout invokes a Standard vertex's function, respecting ctx's
// deadline. A deadline that expires before the function returns surfaces
// ctx.Err() as the vertex's error; a panic surfaces as an error naming it.
func runWithTimeout(ctx context.Context, v *Vertex, snapshot map[string]Value) (map[string]Value, error) {
	type result struct {
		delta map[string]Value
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("vertex panicked: %v", p)}
			}
		}()
		delta, err := v.standardFn(ctx, snapshot)
		done <- result{delta: delta, err: err}
	}()
	select {
	case r := <-done:
		return r.delta, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// computeNextActive walks every previously-active vertex's children,
// resolving any Conditional children inline, and returns the deduplicated
// set of Standard vertices to run next. A v->v self-loop is handled by this
// general rule alone: no special-casing is needed, since v reappears in its
// own child list.
func (e *Engine) computeNextActive(ctx context.Context, runID string, prevActive []string) (map[string]struct{}, error) {
	next := make(map[string]struct{})
	for _, id := range prevActive {
		children, ok := e.graph.ChildrenOf(id)
		if !ok {
			continue
		}
		for _, child := range children {
			if child == End {
				continue
			}
			v, _ := e.graph.Vertex(child)
			if v.Kind() == StandardVertex {
				next[child] = struct{}{}
				continue
			}
			resolved, err := e.resolveConditionalChain(ctx, runID, child)
			if err != nil {
				return nil, err
			}
			if resolved != "" && resolved != End {
				next[resolved] = struct{}{}
			}
		}
	}
	return next, nil
}

// resolveConditionalChain evaluates a Conditional vertex's function and
// follows its routing decision, chaining through further Conditional
// vertices if routed to one, until it lands on a Standard vertex or END.
// Conditional vertices are never members of the active set, so this always
// runs synchronously between supersteps, never inside runSuperstep's
// fan-out. A Conditional vertex's own function error is contained exactly
// like a Standard vertex's NodeFailure: status Failed, lastResult carrying
// INTERNAL_NODE_ERROR, a vertex_failed event, and a node-failure metric,
// with this chain contributing no activation for the current superstep.
func (e *Engine) resolveConditionalChain(ctx context.Context, runID, start string) (string, error) {
	visited := make(map[string]bool)
	current := start
	for {
		if visited[current] {
			return "", validationErrorf(current, "conditional_cycle", "Conditional routing formed a cycle at %q", current)
		}
		visited[current] = true

		v, ok := e.graph.Vertex(current)
		if !ok {
			return "", validationErrorf(current, "missing_vertex", "routing target %q is not registered", current)
		}

		v.setStatus(StatusRunning)
		e.opts.emitter.Emit(emit.Event{RunID: runID, VertexID: current, Msg: "vertex_start"})
		key, err := v.conditionalFn(ctx, e.State().View())
		if err != nil {
			v.setStatus(StatusFailed)
			v.setLastResult(Message{
				VertexID: current,
				Kind:     ConditionalVertex,
				Payload:  map[string]Value{internalNodeErrorKey: StringValue(err.Error())},
			})
			e.opts.emitter.Emit(emit.Event{
				RunID: runID, VertexID: current, Msg: "vertex_error",
				Meta: map[string]interface{}{"error": err.Error()},
			})
			e.opts.emitter.Emit(emit.Event{
				RunID: runID, VertexID: current, Msg: "vertex_failed",
				Meta: map[string]interface{}{"error": err.Error()},
			})
			if e.opts.metrics != nil {
				e.opts.metrics.RecordNodeFailure(runID, current)
			}
			return "", nil
		}

		routing, _ := e.graph.RoutingOf(current)
		target, ok := routing[key]
		if !ok {
			v.setStatus(StatusFailed)
			return "", validationErrorf(current, "unknown_routing_key",
				"Conditional vertex %q returned routing key %q, not present in its routing map", current, key)
		}
		v.setStatus(StatusSuccess)
		v.setLastResult(Message{VertexID: current, Kind: ConditionalVertex, RoutingKey: key})
		e.opts.emitter.Emit(emit.Event{
			RunID: runID, VertexID: current, Msg: "vertex_done",
			Meta: map[string]interface{}{"routing_key": key},
		})

		if target == End {
			return End, nil
		}
		tv, ok := e.graph.Vertex(target)
		if !ok {
			return "", validationErrorf(current, "missing_target", "routing key %q -> %q: %q is not registered", key, target, target)
		}
		if tv.Kind() == StandardVertex {
			return target, nil
		}
		current = target
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func nativeSnapshot(s State) map[string]any {
	view := s.View()
	out := make(map[string]any, len(view))
	for k, v := range view {
		out[k] = v.Native()
	}
	return out
}

// MaxSupersteps reports the configured superstep budget, as set by
// WithMaxSupersteps (100 by default).
func (e *Engine) MaxSupersteps() int {
	return e.opts.maxSupersteps
}
