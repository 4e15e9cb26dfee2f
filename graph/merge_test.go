package graph

import (
	"errors"
	"sort"
	"testing"
)

func TestMerge_EmptyBagLeavesSnapshotUnchanged(t *testing.T) {
	prev := NewState(map[string]Value{"step": IntValue(1)})
	got, err := Merge(prev, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if n, _ := got.View()["step"].Int(); n != 1 {
		t.Errorf("step = %d, want 1 (unchanged)", n)
	}
}

func TestMerge_SingleMessageOverwrites(t *testing.T) {
	prev := NewState(map[string]Value{"step": IntValue(0), "message": StringValue("")})
	msg := Message{VertexID: "n1", Kind: StandardVertex, Payload: map[string]Value{"step": IntValue(1)}}

	got, err := Merge(prev, []Message{msg})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	view := got.View()
	if n, _ := view["step"].Int(); n != 1 {
		t.Errorf("step = %d, want 1", n)
	}
	if s, _ := view["message"].String(); s != "" {
		t.Errorf("message = %q, want unchanged empty string", s)
	}
}

// Fan-in contributions to one key append into a list preserving the
// multiset of contributions.
func TestMerge_FanInAppendsScalars(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0)})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(2)}},
	}

	got, err := Merge(prev, msgs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	list, ok := got.View()["x"].List()
	if !ok {
		t.Fatalf("merged x is not a list")
	}
	assertMultisetEqualsInts(t, list, []int64{1, 2})
}

func TestMerge_FanInConcatenatesLists(t *testing.T) {
	prev := NewState(map[string]Value{"xs": ListValue(nil)})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"xs": ListValue([]Value{IntValue(1), IntValue(2)})}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"xs": IntValue(3)}},
	}

	got, err := Merge(prev, msgs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	list, ok := got.View()["xs"].List()
	if !ok {
		t.Fatalf("merged xs is not a list")
	}
	// A list contribution concatenates rather than nesting: [1,2] + 3 -> [1,2,3], never [[1,2],3].
	assertMultisetEqualsInts(t, list, []int64{1, 2, 3})
}

func TestMerge_FanInPreservesUntouchedKeys(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0), "untouched": StringValue("keep")})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(2)}},
	}

	got, err := Merge(prev, msgs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if s, _ := got.View()["untouched"].String(); s != "keep" {
		t.Errorf("untouched = %q, want keep", s)
	}
}

func TestMerge_FanIn_DistinctKeysDoNotInterfere(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0), "y": IntValue(0)})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"y": IntValue(2)}},
	}

	got, err := Merge(prev, msgs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	view := got.View()
	xs, ok := view["x"].List()
	if !ok {
		t.Fatalf("x = %v, want a list (fan-in appends even a single contributor)", view["x"])
	}
	assertMultisetEqualsInts(t, xs, []int64{1})
	ys, ok := view["y"].List()
	if !ok {
		t.Fatalf("y = %v, want a list", view["y"])
	}
	assertMultisetEqualsInts(t, ys, []int64{2})
}

func TestMerge_TypeMismatchFails(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0)})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"x": StringValue("two")}},
	}

	_, err := Merge(prev, msgs)
	if err == nil {
		t.Fatal("expected a MergeError for mismatched contribution types")
	}
	var me *MergeError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MergeError, got %T", err)
	}
	if me.Reason != ReasonTypeMismatch {
		t.Errorf("Reason = %v, want ReasonTypeMismatch", me.Reason)
	}
	if me.Key != "x" {
		t.Errorf("Key = %q, want x", me.Key)
	}
}

func TestMerge_UnknownTypeFails(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0)})
	msgs := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": Value{}}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
	}

	_, err := Merge(prev, msgs)
	if err == nil {
		t.Fatal("expected a MergeError for an unrepresentable value")
	}
	var me *MergeError
	if !errors.As(err, &me) || me.Reason != ReasonUnknownType {
		t.Errorf("expected ReasonUnknownType, got %v", err)
	}
}

func TestMerge_IsCommutativeUnderAppend(t *testing.T) {
	prev := NewState(map[string]Value{"x": IntValue(0)})
	forward := []Message{
		{VertexID: "a", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(1)}},
		{VertexID: "b", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(2)}},
		{VertexID: "c", Kind: StandardVertex, Payload: map[string]Value{"x": IntValue(3)}},
	}
	reversed := []Message{forward[2], forward[1], forward[0]}

	got1, err := Merge(prev, forward)
	if err != nil {
		t.Fatalf("Merge(forward): %v", err)
	}
	got2, err := Merge(prev, reversed)
	if err != nil {
		t.Fatalf("Merge(reversed): %v", err)
	}

	l1, _ := got1.View()["x"].List()
	l2, _ := got2.View()["x"].List()
	assertMultisetEqualsValues(t, l1, l2)
}

func assertMultisetEqualsInts(t *testing.T, got []Value, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d (got=%v)", len(got), len(want), got)
	}
	gotInts := make([]int64, len(got))
	for i, v := range got {
		n, ok := v.Int()
		if !ok {
			t.Fatalf("got[%d] is not an int: %#v", i, v)
		}
		gotInts[i] = n
	}
	sort.Slice(gotInts, func(i, j int) bool { return gotInts[i] < gotInts[j] })
	wantSorted := append([]int64(nil), want...)
	sort.Slice(wantSorted, func(i, j int) bool { return wantSorted[i] < wantSorted[j] })
	for i := range gotInts {
		if gotInts[i] != wantSorted[i] {
			t.Errorf("multiset mismatch: got %v, want %v", gotInts, wantSorted)
			return
		}
	}
}

func assertMultisetEqualsValues(t *testing.T, a, b []Value) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("len(a)=%d != len(b)=%d", len(a), len(b))
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if !used[i] && av.Equal(bv) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("multiset mismatch: %v not found matching in %v", a, b)
		}
	}
}
