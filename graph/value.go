// Package graph provides the core BSP (bulk-synchronous-parallel) execution
// engine for dataflow workflows built as directed graphs of user functions.
package graph

import "fmt"

// Kind identifies the concrete shape held by a Value.
type Kind int

// The closed set of shapes a Value can hold. There is no "unknown" kind:
// the zero Value is KindInvalid, which TypeFamily reports as FamilyUnknown
// so merge can still reject it rather than panicking.
const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// TypeFamily names the merge-dispatch family for a Value.
type TypeFamily string

const (
	FamilyInt     TypeFamily = "int"
	FamilyFloat   TypeFamily = "float"
	FamilyBool    TypeFamily = "bool"
	FamilyString  TypeFamily = "string"
	FamilyList    TypeFamily = "list"
	FamilyMap     TypeFamily = "map"
	FamilyUnknown TypeFamily = "unknown"
)

// Value is a tagged-union snapshot element over the supported scalar and
// container shapes.
//
// Value is immutable once constructed; List and Map values are always
// defensively copied on construction and on every read so that a State's
// snapshot cannot be mutated through a Value obtained from it.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	list []Value
	m    map[string]Value
}

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a floating-point number.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ListValue wraps a list of values, copying the input slice.
func ListValue(vs []Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// MapValue wraps a map of values, deep-copying the input map.
func MapValue(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind reports which shape this Value holds.
func (v Value) Kind() Kind { return v.kind }

// Int returns the wrapped integer and whether v holds one.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the wrapped float and whether v holds one.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// Bool returns the wrapped boolean and whether v holds one.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// String returns the wrapped string and whether v holds one.
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// List returns a defensive copy of the wrapped list and whether v holds one.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// Map returns a defensive copy of the wrapped map and whether v holds one.
func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, val := range v.m {
		cp[k] = val
	}
	return cp, true
}

// TypeFamily classifies v for merge dispatch.
func (v Value) TypeFamily() TypeFamily {
	switch v.kind {
	case KindInt:
		return FamilyInt
	case KindFloat:
		return FamilyFloat
	case KindBool:
		return FamilyBool
	case KindString:
		return FamilyString
	case KindList:
		return FamilyList
	case KindMap:
		return FamilyMap
	default:
		return FamilyUnknown
	}
}

// Equal reports structural equality between two Values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Native converts v into plain Go data (int64, float64, bool, string,
// []any, map[string]any) suitable for JSON encoding by a HistorySink.
func (v Value) Native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// GoString renders a Value for debugging and test failure messages.
func (v Value) GoString() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("Float(%g)", v.f)
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	case KindString:
		return fmt.Sprintf("Str(%q)", v.s)
	case KindList:
		return fmt.Sprintf("List(%v)", v.list)
	case KindMap:
		return fmt.Sprintf("Map(%v)", v.m)
	default:
		return "Invalid"
	}
}
