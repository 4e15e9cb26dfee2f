package graph

import "sort"

// Merge folds a superstep-local bag of Standard messages into a single new
// state snapshot. It is a pure function: prev is never
// mutated, and the returned State is a fresh value.
func Merge(prev State, msgs []Message) (State, error) {
	switch len(msgs) {
	case 0:
		// Empty bag: previous snapshot unchanged.
		return prev, nil
	case 1:
		// Single message: payload overwrites matching keys, rest preserved.
		merged := prev.View()
		for k, v := range msgs[0].Payload {
			merged[k] = v
		}
		return prev.Replace(merged), nil
	}

	// Fan-in: union of payload keys, append semantics per key.
	contributions := make(map[string][]Value)
	var order []string
	for _, msg := range msgs {
		keys := make([]string, 0, len(msg.Payload))
		for k := range msg.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, seen := contributions[k]; !seen {
				order = append(order, k)
			}
			contributions[k] = append(contributions[k], msg.Payload[k])
		}
	}

	resultMap := make(map[string]Value, len(order))
	for _, k := range order {
		merged, err := mergeAppend(contributions[k])
		if err != nil {
			if me, ok := err.(*MergeError); ok {
				me.Key = k
			}
			return prev, err
		}
		resultMap[k] = merged
	}

	merged := prev.View()
	for k, v := range resultMap {
		merged[k] = v
	}
	return prev.Replace(merged), nil
}

// mergeAppend combines the contributions to a single key under the append
// policy: the result is a list of every contribution in arrival order, with
// list-typed contributions concatenated rather than nested.
//
// All contributions must share a type family with the list's existing
// tail element. Concretely: the element family of each
// contribution (a scalar's own family, or a non-empty list's element
// family) must agree with the element family of the prior contribution. An
// empty list contributes no elements and imposes no family constraint.
func mergeAppend(vals []Value) (Value, error) {
	var out []Value
	var tailFamily TypeFamily
	haveTail := false

	for _, v := range vals {
		if v.TypeFamily() == FamilyUnknown {
			return Value{}, &MergeError{Reason: ReasonUnknownType}
		}

		fam, determined := elementFamily(v)
		if determined {
			if haveTail && fam != tailFamily {
				return Value{}, &MergeError{Reason: ReasonTypeMismatch}
			}
			tailFamily = fam
			haveTail = true
		}

		if v.Kind() == KindList {
			elems, _ := v.List()
			out = append(out, elems...)
		} else {
			out = append(out, v)
		}
	}

	return ListValue(out), nil
}

// elementFamily returns the type family that a contribution adds to the
// merged list: a scalar's own family, or a non-empty list's element family.
// The second return value is false when no constraint can be determined
// (an empty list contributes no elements).
func elementFamily(v Value) (TypeFamily, bool) {
	if v.Kind() != KindList {
		return v.TypeFamily(), true
	}
	elems, _ := v.List()
	if len(elems) == 0 {
		return "", false
	}
	return elems[0].TypeFamily(), true
}
