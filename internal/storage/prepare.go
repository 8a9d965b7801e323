package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
)

// ErrNoIdentity is returned when a record has no id and none can be
// generated for it.
var ErrNoIdentity = errors.New("record has no identity")

// Batch is a normalized mutation batch with ids resolved.
type Batch struct {
	Items []record.Record
	IDs   []ID
}

// PrepareBatch normalizes and deep copies items, and assigns generated ids
// to items without one. Generated ids are written into the identity field;
// a function identity cannot receive one and fails with ErrNoIdentity.
// inUse reports ids that must not be generated. An id given twice in one
// batch fails with DUPLICATE_IDENTITY.
func PrepareBatch(ctx context.Context, identity Identity, gen IDGenerator, inUse func(ID) bool, items []record.Record) (Batch, error) {
	b := Batch{Items: make([]record.Record, len(items)), IDs: make([]ID, len(items))}
	explicit := map[ID]bool{}
	for _, item := range items {
		if id, ok := identity.Identify(item); ok {
			explicit[id] = true
		}
	}
	taken := map[ID]bool{}
	for i, item := range items {
		r := record.From(item)
		if r == nil {
			r = record.Record{}
		}
		id, ok := identity.Identify(r)
		if ok && taken[id] {
			return Batch{}, errs.DuplicateIdentity(id)
		}
		if !ok {
			field, hasField := identity.Field()
			if !hasField {
				return Batch{}, fmt.Errorf("item %d: %w", i, ErrNoIdentity)
			}
			generated, err := NextID(ctx, gen, func(c ID) bool { return taken[c] || explicit[c] || inUse(c) })
			if err != nil {
				return Batch{}, err
			}
			id = generated
			r[field] = id
		}
		taken[id] = true
		b.Items[i] = r
		b.IDs[i] = id
	}
	return b, nil
}

// NextID draws candidates from gen until one is not in use.
func NextID(ctx context.Context, gen IDGenerator, inUse func(ID) bool) (ID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id := gen.Generate()
		if !inUse(id) {
			return id, nil
		}
	}
}

// ApplyPatches applies updates in order to the values returned by current,
// without touching stored state. It fails with NOT_FOUND naming every
// missing id, or with the first patch error. A patch may not change a
// record's identity.
func ApplyPatches(identity Identity, updates []PatchUpdate, current func(ID) (record.Record, bool)) (map[ID]record.Record, []ID, error) {
	var missing []ID
	for _, u := range updates {
		if _, ok := current(u.ID); !ok {
			missing = append(missing, u.ID)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errs.NotFound(missing...)
	}

	working := map[ID]record.Record{}
	var order []ID
	for _, u := range updates {
		base, seen := working[u.ID]
		if !seen {
			base, _ = current(u.ID)
			order = append(order, u.ID)
		}
		next, err := u.Patch.Apply(base)
		if err != nil {
			return nil, nil, fmt.Errorf("patch %q: %w", u.ID, err)
		}
		if id, ok := identity.Identify(next); !ok || id != u.ID {
			return nil, nil, fmt.Errorf("patch %q: identity must not change", u.ID)
		}
		working[u.ID] = next
	}
	return working, order, nil
}

// CloneAll deep copies a record list, preserving nil slots.
func CloneAll(items []record.Record) []record.Record {
	out := make([]record.Record, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
