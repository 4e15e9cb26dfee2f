package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noopStd(ctx context.Context, s map[string]Value) (map[string]Value, error) { return nil, nil }
func noopCond(ctx context.Context, s map[string]Value) (string, error)          { return "k", nil }

func TestGraph_AddNode(t *testing.T) {
	t.Run("registers a standard vertex", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		if err := g.AddNode("n1", noopStd); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		v, ok := g.Vertex("n1")
		if !ok || v.Kind() != StandardVertex {
			t.Errorf("expected a registered Standard vertex n1")
		}
	})

	t.Run("rejects reserved sentinel ids", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		if err := g.AddNode(Start, noopStd); err == nil {
			t.Error("expected ConfigError registering START as a vertex id")
		}
		if err := g.AddNode(End, noopStd); err == nil {
			t.Error("expected ConfigError registering END as a vertex id")
		}
	})

	t.Run("rejects empty id", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		if err := g.AddNode("", noopStd); err == nil {
			t.Error("expected ConfigError for an empty vertex id")
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		err := g.AddNode("n1", noopStd)
		if err == nil {
			t.Fatal("expected ConfigError for a duplicate vertex id")
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("expected *ConfigError, got %T", err)
		}
	})

	t.Run("rejects nil fn", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		if err := g.AddNode("n1", nil); err == nil {
			t.Error("expected ConfigError for a nil fn")
		}
	})
}

func TestGraph_AddConditionalNode(t *testing.T) {
	g := NewGraph(NewState(nil))
	if err := g.AddConditionalNode("router", noopCond); err != nil {
		t.Fatalf("AddConditionalNode: %v", err)
	}
	v, ok := g.Vertex("router")
	if !ok || v.Kind() != ConditionalVertex {
		t.Error("expected a registered Conditional vertex router")
	}
}

func TestGraph_AddNodeWithPolicy(t *testing.T) {
	g := NewGraph(NewState(nil))
	if err := g.AddNodeWithPolicy("slow", noopStd, NodePolicy{Timeout: 50 * time.Millisecond}); err != nil {
		t.Fatalf("AddNodeWithPolicy: %v", err)
	}
	v, ok := g.Vertex("slow")
	if !ok {
		t.Fatal("expected a registered vertex slow")
	}
	if v.Policy.Timeout != 50*time.Millisecond {
		t.Errorf("Policy.Timeout = %v, want 50ms", v.Policy.Timeout)
	}

	if err := g.AddNodeWithPolicy("slow", noopStd, NodePolicy{}); err == nil {
		t.Error("expected ConfigError for a duplicate id")
	}
}

// AddEdge rejects every malformed endpoint combination.
func TestGraph_AddEdge_Validation(t *testing.T) {
	t.Run("rejects END as source", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge(End, "n1"); err == nil {
			t.Error("expected ConfigError for an edge sourced from END")
		}
	})

	t.Run("rejects START as target", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge("n1", Start); err == nil {
			t.Error("expected ConfigError for an edge targeting START")
		}
	})

	t.Run("rejects missing source", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge("ghost", "n1"); err == nil {
			t.Error("expected ConfigError for an edge from an unregistered vertex")
		}
	})

	t.Run("rejects missing target", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge("n1", "ghost"); err == nil {
			t.Error("expected ConfigError for an edge to an unregistered vertex")
		}
	})

	t.Run("rejects duplicate edges", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		_ = g.AddNode("n2", noopStd)
		_ = g.AddEdge("n1", "n2")
		if err := g.AddEdge("n1", "n2"); err == nil {
			t.Error("expected ConfigError for a duplicate edge")
		}
	})

	t.Run("rejects a second START edge", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		_ = g.AddNode("n2", noopStd)
		_ = g.AddEdge(Start, "n1")
		if err := g.AddEdge(Start, "n2"); err == nil {
			t.Error("expected ConfigError for a second START edge")
		}
	})

	t.Run("allows START routing to a Conditional vertex", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddConditionalNode("router", noopCond)
		if err := g.AddEdge(Start, "router"); err != nil {
			t.Errorf("AddEdge(START, router) = %v, want nil: routing is resolved inline at invoke time", err)
		}
	})

	t.Run("allows appending END", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge("n1", End); err != nil {
			t.Errorf("AddEdge(n1, END) = %v, want nil", err)
		}
		children, _ := g.ChildrenOf("n1")
		if len(children) != 1 || children[0] != End {
			t.Errorf("ChildrenOf(n1) = %v, want [END]", children)
		}
	})

	t.Run("rejects two Conditional children of the same parent", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		_ = g.AddConditionalNode("r1", noopCond)
		_ = g.AddConditionalNode("r2", noopCond)
		if err := g.AddEdge("n1", "r1"); err != nil {
			t.Fatalf("AddEdge(n1, r1): %v", err)
		}
		if err := g.AddEdge("n1", "r2"); err == nil {
			t.Error("expected ConfigError for a second Conditional child of the same parent")
		}
	})

	t.Run("rejects edges sourced from a Conditional vertex", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddConditionalNode("r1", noopCond)
		_ = g.AddNode("n1", noopStd)
		if err := g.AddEdge("r1", "n1"); err == nil {
			t.Error("expected ConfigError: use AddConditionalEdges for a Conditional source")
		}
	})
}

func TestGraph_AddConditionalEdges(t *testing.T) {
	t.Run("sets the routing map", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddConditionalNode("router", noopCond)
		_ = g.AddNode("a", noopStd)
		_ = g.AddNode("b", noopStd)
		if err := g.AddConditionalEdges("router", map[string]string{"go_a": "a", "go_b": "b", "stop": End}); err != nil {
			t.Fatalf("AddConditionalEdges: %v", err)
		}
		routing, ok := g.RoutingOf("router")
		if !ok || routing["go_a"] != "a" || routing["stop"] != End {
			t.Errorf("RoutingOf(router) = %v", routing)
		}
	})

	t.Run("rejects a target that is not registered", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddConditionalNode("router", noopCond)
		if err := g.AddConditionalEdges("router", map[string]string{"k": "ghost"}); err == nil {
			t.Error("expected ConfigError for an unregistered routing target")
		}
	})

	t.Run("rejects a non-Conditional source", func(t *testing.T) {
		g := NewGraph(NewState(nil))
		_ = g.AddNode("n1", noopStd)
		if err := g.AddConditionalEdges("n1", map[string]string{"k": End}); err == nil {
			t.Error("expected ConfigError: n1 is not a Conditional vertex")
		}
	})
}

// After Compile, every mutating Graph API fails with ConfigError.
func TestGraph_FreezeAfterCompile(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	_ = g.AddEdge(Start, "n1")
	_ = g.AddEdge("n1", End)

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !g.Frozen() {
		t.Fatal("expected Frozen() == true after Compile")
	}

	if err := g.AddNode("n2", noopStd); err == nil {
		t.Error("expected ConfigError: AddNode after Compile")
	}
	if err := g.AddConditionalNode("r", noopCond); err == nil {
		t.Error("expected ConfigError: AddConditionalNode after Compile")
	}
	if err := g.AddEdge("n1", End); err == nil {
		t.Error("expected ConfigError: AddEdge after Compile")
	}
}

func TestGraph_Compile_RequiresStart(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	if err := g.Compile(); err == nil {
		t.Error("expected CompileError: no START edge")
	}
}

func TestGraph_Compile_DetectsUnreachableVertex(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	_ = g.AddNode("orphan", noopStd)
	_ = g.AddEdge(Start, "n1")
	_ = g.AddEdge("n1", End)

	err := g.Compile()
	if err == nil {
		t.Fatal("expected CompileError: orphan is unreachable from START")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Errorf("expected *CompileError, got %T", err)
	}
}

func TestGraph_Compile_AutoAppendsEndToChildlessVertex(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	_ = g.AddEdge(Start, "n1")

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	children, _ := g.ChildrenOf("n1")
	if len(children) != 1 || children[0] != End {
		t.Errorf("ChildrenOf(n1) = %v, want auto-appended [END]", children)
	}
}

func TestGraph_Compile_IsIdempotent(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	_ = g.AddEdge(Start, "n1")
	_ = g.AddEdge("n1", End)

	if err := g.Compile(); err != nil {
		t.Fatalf("first Compile: %v", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("second Compile should be a no-op, got: %v", err)
	}
}

func TestGraph_ParentsOf(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("n1", noopStd)
	_ = g.AddNode("n2", noopStd)
	_ = g.AddNode("n3", noopStd)
	_ = g.AddEdge(Start, "n1")
	_ = g.AddEdge("n1", "n3")
	_ = g.AddEdge("n2", "n3")

	parents := g.ParentsOf("n3")
	if len(parents) != 2 || parents[0] != "n1" || parents[1] != "n2" {
		t.Errorf("ParentsOf(n3) = %v, want [n1 n2]", parents)
	}

	startParents := g.ParentsOf("n1")
	if len(startParents) != 1 || startParents[0] != Start {
		t.Errorf("ParentsOf(n1) = %v, want [START]", startParents)
	}
}

func TestGraph_AllVertices_PreservesRegistrationOrder(t *testing.T) {
	g := NewGraph(NewState(nil))
	_ = g.AddNode("c", noopStd)
	_ = g.AddNode("a", noopStd)
	_ = g.AddNode("b", noopStd)

	ids := make([]string, 0, 3)
	for _, v := range g.AllVertices() {
		ids = append(ids, v.ID())
	}
	want := []string{"c", "a", "b"}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("AllVertices()[%d] = %q, want %q", i, id, want[i])
		}
	}
}
