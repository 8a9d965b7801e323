package patch

import (
	"slices"

	"github.com/roach88/viewstore/internal/record"
)

// Diff computes a patch that transforms a into b.
//
// Objects are compared key by key (removals, then recursive changes, then
// additions, each in sorted key order). Arrays and scalars that differ are
// replaced whole.
func Diff(a, b record.Record) Patch {
	var ops []Operation
	diffObjects(Pointer{}, map[string]any(a), map[string]any(b), &ops)
	return Patch{Ops: ops}
}

func diffObjects(at Pointer, a, b map[string]any, ops *[]Operation) {
	keysA := sortedKeys(a)
	keysB := sortedKeys(b)

	for _, k := range keysA {
		if _, ok := b[k]; !ok {
			*ops = append(*ops, Remove(at.Push(k)))
		}
	}
	for _, k := range keysA {
		vb, ok := b[k]
		if !ok {
			continue
		}
		diffValues(at.Push(k), a[k], vb, ops)
	}
	for _, k := range keysB {
		if _, ok := a[k]; !ok {
			*ops = append(*ops, Add(at.Push(k), record.Clone(b[k])))
		}
	}
}

func diffValues(at Pointer, a, b any, ops *[]Operation) {
	oa, okA := record.AsObject(a)
	ob, okB := record.AsObject(b)
	if okA && okB {
		diffObjects(at, oa, ob, ops)
		return
	}
	if !record.Equal(a, b) {
		*ops = append(*ops, Replace(at, record.Clone(b)))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
