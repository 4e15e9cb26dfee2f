package graph

import "sort"

// Reserved sentinel identifiers. They may appear as edge endpoints but are
// never valid vertex ids.
const (
	Start = "START"
	End   = "END"
)

// Graph is a frozen-after-compile container of vertices and edges. Before
// Compile it accepts node and edge registrations; after
// Compile no mutating method succeeds.
type Graph struct {
	vertices map[string]*Vertex
	order    []string // insertion order, for deterministic AllVertices()

	// stdAdj holds, for each Standard vertex, its ordered child list. A
	// child may be another vertex id or End.
	stdAdj map[string][]string

	// condAdj holds, for each Conditional vertex, its routing-key -> target
	// map. Targets may be a vertex id or End.
	condAdj map[string]map[string]string

	startTarget string // Start's single destination; "" if unset

	frozen       bool
	initialState State
}

// NewGraph constructs a Graph seeded with the given initial state.
func NewGraph(initial State) *Graph {
	return &Graph{
		vertices:     make(map[string]*Vertex),
		stdAdj:       make(map[string][]string),
		condAdj:      make(map[string]map[string]string),
		initialState: initial,
	}
}

// AddNode registers a Standard vertex. It rejects a frozen
// graph, a reserved sentinel id, an empty id, a nil fn, or a duplicate id.
func (g *Graph) AddNode(id string, fn StandardFunc) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if err := g.checkNewID(id); err != nil {
		return err
	}
	if fn == nil {
		return configErrorf("nil_fn", "node %q: fn must not be nil", id)
	}
	g.vertices[id] = newStandardVertex(id, fn)
	g.order = append(g.order, id)
	return nil
}

// AddNodeWithPolicy registers a Standard vertex carrying a per-vertex
// execution policy, subject to the same checks as AddNode. The policy's
// Timeout bounds each invocation of fn; on expiry the vertex fails like
// any other raised error.
func (g *Graph) AddNodeWithPolicy(id string, fn StandardFunc, policy NodePolicy) error {
	if err := g.AddNode(id, fn); err != nil {
		return err
	}
	g.vertices[id].Policy = policy
	return nil
}

// AddConditionalNode registers a Conditional vertex, subject
// to the same checks as AddNode.
func (g *Graph) AddConditionalNode(id string, fn ConditionalFunc) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if err := g.checkNewID(id); err != nil {
		return err
	}
	if fn == nil {
		return configErrorf("nil_fn", "node %q: fn must not be nil", id)
	}
	g.vertices[id] = newConditionalVertex(id, fn)
	g.order = append(g.order, id)
	return nil
}

// AddEdge adds a static edge.
//
//   - from == Start: sets the single Start target; rejects if already set.
//   - to == End: appends End to from's child list.
//   - otherwise: from must be a registered Standard vertex and to a
//     registered Standard or Conditional vertex; the child list gains to,
//     duplicates rejected.
//
// from == End and to == Start are always rejected. A Standard vertex may
// route to at most one Conditional child; a second Conditional child is
// rejected with ConfigError.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if from == End {
		return configErrorf("end_as_source", "END may not be used as an edge source")
	}
	if to == Start {
		return configErrorf("start_as_target", "START may not be used as an edge target")
	}

	if from == Start {
		if g.startTarget != "" {
			return configErrorf("start_already_set", "START already routes to %q", g.startTarget)
		}
		if to != End {
			if _, ok := g.vertices[to]; !ok {
				return configErrorf("missing_target", "edge START->%q: %q is not registered", to, to)
			}
		}
		g.startTarget = to
		return nil
	}

	fromVertex, ok := g.vertices[from]
	if !ok {
		return configErrorf("missing_source", "edge %q->%q: %q is not registered", from, to, from)
	}
	if fromVertex.Kind() == ConditionalVertex {
		return configErrorf("edge_from_conditional", "vertex %q is Conditional: use AddConditionalEdges, not AddEdge", from)
	}

	if to != End {
		target, ok := g.vertices[to]
		if !ok {
			return configErrorf("missing_target", "edge %q->%q: %q is not registered", from, to, to)
		}
		_ = target
	}

	for _, existing := range g.stdAdj[from] {
		if existing == to {
			return configErrorf("duplicate_edge", "edge %q->%q already exists", from, to)
		}
	}

	if to != End && g.vertices[to].Kind() == ConditionalVertex {
		for _, existing := range g.stdAdj[from] {
			if existing == End {
				continue
			}
			if ev := g.vertices[existing]; ev != nil && ev.Kind() == ConditionalVertex {
				return configErrorf("multiple_routers", "vertex %q already routes to Conditional child %q", from, existing)
			}
		}
	}

	g.stdAdj[from] = append(g.stdAdj[from], to)
	return nil
}

// AddConditionalEdges sets the routing map for a Conditional vertex. Every
// value in routingMap must be a registered vertex id or End.
func (g *Graph) AddConditionalEdges(from string, routingMap map[string]string) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	v, ok := g.vertices[from]
	if !ok {
		return configErrorf("missing_source", "%q is not registered", from)
	}
	if v.Kind() != ConditionalVertex {
		return configErrorf("not_conditional", "%q is not a Conditional vertex", from)
	}
	if _, already := g.condAdj[from]; already {
		return configErrorf("already_configured", "conditional routing for %q is already configured", from)
	}
	for key, target := range routingMap {
		if target != End {
			if _, ok := g.vertices[target]; !ok {
				return configErrorf("missing_target", "routing key %q -> %q: %q is not registered", key, target, target)
			}
		}
	}
	cp := make(map[string]string, len(routingMap))
	for k, v := range routingMap {
		cp[k] = v
	}
	g.condAdj[from] = cp
	return nil
}

// Compile freezes the graph. It verifies Start is
// set, every vertex is reachable from Start, and appends End to any
// childless Standard vertex so it terminates cleanly. Compile is idempotent:
// calling it again on an already-frozen graph is a no-op.
func (g *Graph) Compile() error {
	if g.frozen {
		return nil
	}
	if g.startTarget == "" {
		return compileErrorf("missing_start", "graph has no START edge")
	}

	for id, v := range g.vertices {
		if v.Kind() == StandardVertex {
			if _, has := g.stdAdj[id]; !has {
				g.stdAdj[id] = []string{End}
			}
		}
	}

	reachable := g.reachableFromStart()
	for id := range g.vertices {
		if !reachable[id] {
			return compileErrorf("unreachable_vertex", "vertex %q is not reachable from START", id)
		}
	}

	g.frozen = true
	return nil
}

func (g *Graph) reachableFromStart() map[string]bool {
	visited := make(map[string]bool)
	if g.startTarget == "" || g.startTarget == End {
		return visited
	}
	queue := []string{g.startTarget}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		v := g.vertices[id]
		if v == nil {
			continue
		}
		if v.Kind() == StandardVertex {
			for _, child := range g.stdAdj[id] {
				if child != End && !visited[child] {
					queue = append(queue, child)
				}
			}
		} else {
			for _, target := range g.condAdj[id] {
				if target != End && !visited[target] {
					queue = append(queue, target)
				}
			}
		}
	}
	return visited
}

// Frozen reports whether Compile has succeeded on this graph.
func (g *Graph) Frozen() bool { return g.frozen }

// ChildrenOf returns the ordered child list of a Standard vertex (may
// include End), or ok=false if id does not name a registered Standard
// vertex.
func (g *Graph) ChildrenOf(id string) (children []string, ok bool) {
	v, exists := g.vertices[id]
	if !exists || v.Kind() != StandardVertex {
		return nil, false
	}
	children = make([]string, len(g.stdAdj[id]))
	copy(children, g.stdAdj[id])
	return children, true
}

// RoutingOf returns a copy of a Conditional vertex's routing-key -> target
// map, or ok=false if id does not name a registered Conditional vertex.
func (g *Graph) RoutingOf(id string) (routing map[string]string, ok bool) {
	v, exists := g.vertices[id]
	if !exists || v.Kind() != ConditionalVertex {
		return nil, false
	}
	routing = make(map[string]string, len(g.condAdj[id]))
	for k, v := range g.condAdj[id] {
		routing[k] = v
	}
	return routing, true
}

// Vertex returns the registered vertex with the given id.
func (g *Graph) Vertex(id string) (*Vertex, bool) {
	v, ok := g.vertices[id]
	return v, ok
}

// AllVertices returns every registered vertex in registration order.
func (g *Graph) AllVertices() []*Vertex {
	out := make([]*Vertex, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.vertices[id])
	}
	return out
}

// ParentsOf returns the ids of every vertex with a static or conditional
// edge targeting id, sorted for determinism. Provided for diagnostics.
func (g *Graph) ParentsOf(id string) []string {
	var parents []string
	for from, children := range g.stdAdj {
		for _, c := range children {
			if c == id {
				parents = append(parents, from)
				break
			}
		}
	}
	for from, routing := range g.condAdj {
		for _, target := range routing {
			if target == id {
				parents = append(parents, from)
				break
			}
		}
	}
	if g.startTarget == id {
		parents = append(parents, Start)
	}
	sort.Strings(parents)
	return parents
}

// StartTarget returns the vertex id (or End) that START routes to, and
// whether START has been set.
func (g *Graph) StartTarget() (string, bool) {
	return g.startTarget, g.startTarget != ""
}

// InitialState returns the state snapshot the graph was constructed with.
func (g *Graph) InitialState() State { return g.initialState }

func (g *Graph) checkMutable() error {
	if g.frozen {
		return configErrorf("frozen", "graph is frozen: no mutation is permitted after Compile")
	}
	return nil
}

func (g *Graph) checkNewID(id string) error {
	if id == "" {
		return configErrorf("empty_id", "vertex id must not be empty")
	}
	if id == Start || id == End {
		return configErrorf("reserved_id", "%q is a reserved sentinel and cannot be used as a vertex id", id)
	}
	if _, exists := g.vertices[id]; exists {
		return configErrorf("duplicate_id", "vertex %q is already registered", id)
	}
	return nil
}
