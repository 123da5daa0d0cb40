// Package diff computes shallow change records between configuration snapshots.
package diff

import "sort"

// Change describes how a single top-level key moved between two snapshots.
// A side that was absent is rendered as null.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Diff maps each changed key to its change.
type Diff map[string]Change

// Keys returns the changed keys in sorted order.
func (d Diff) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compute returns the keys whose values differ between previous and next.
//
// Values are compared by canonical encoding (see Canonical). A key that is
// absent on one side and explicitly null on the other counts as changed and
// is emitted as {from: null, to: null}.
func Compute(previous, next map[string]any) Diff {
	result := make(Diff)

	for key, prevVal := range previous {
		nextVal, ok := next[key]
		if !ok {
			result[key] = Change{From: prevVal, To: nil}
			continue
		}
		if !Equal(prevVal, nextVal) {
			result[key] = Change{From: prevVal, To: nextVal}
		}
	}

	for key, nextVal := range next {
		if _, ok := previous[key]; !ok {
			result[key] = Change{From: nil, To: nextVal}
		}
	}

	return result
}
