package emit

import (
	"context"
	"testing"
)

func TestNullEmitter_DiscardsEverything(t *testing.T) {
	n := NewNullEmitter()

	n.Emit(Event{RunID: "r1", Msg: "run_start"})
	n.Emit(Event{})

	if err := n.EmitBatch(context.Background(), []Event{{Msg: "vertex_start"}, {Msg: "vertex_done"}}); err != nil {
		t.Errorf("EmitBatch = %v, want nil", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Errorf("Flush = %v, want nil", err)
	}
	// Flush must be idempotent.
	if err := n.Flush(context.Background()); err != nil {
		t.Errorf("second Flush = %v, want nil", err)
	}
}
