package storage

import (
	"context"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
)

// ID identifies a record within a store.
type ID = string

// OpType discriminates mutation results.
type OpType string

const (
	OpAdd    OpType = "add"
	OpPut    OpType = "put"
	OpPatch  OpType = "patch"
	OpDelete OpType = "delete"
)

// PutOptions controls overwrite behavior.
type PutOptions struct {
	// RejectOverwrite makes Put fail the whole batch when any id exists.
	RejectOverwrite bool

	// AllowOverwrite lets Add replace existing ids instead of failing.
	AllowOverwrite bool
}

// PatchUpdate pairs an id with the patch to apply to its stored value.
type PatchUpdate struct {
	ID    ID
	Patch patch.Patch
}

// Result describes the outcome of a mutation batch.
//
// Failed and Current are aligned: Current[i] is the stored value for
// Failed[i] at the time of failure, or nil when there is none.
type Result struct {
	Type          OpType
	Successful    []record.Record
	SuccessfulIDs []ID
	Failed        []record.Record
	Current       []record.Record
}

// Storage is the raw collection contract.
//
// Implementations must be safe for concurrent use and must return copies:
// callers may modify returned records without affecting stored state.
type Storage interface {
	// Identify derives the id of each item; "" marks an item without one.
	Identify(items ...record.Record) []ID

	// CreateID returns an id not currently in use.
	CreateID(ctx context.Context) (ID, error)

	// Fetch returns the collection in position order, transformed by q
	// when q is non-nil.
	Fetch(ctx context.Context, q query.Query) ([]record.Record, error)

	// Get returns one slot per requested id, nil when absent.
	Get(ctx context.Context, ids ...ID) ([]record.Record, error)

	// Put inserts new ids and replaces existing ones.
	Put(ctx context.Context, items []record.Record, opts PutOptions) (Result, error)

	// Add inserts records, failing on existing ids unless
	// opts.AllowOverwrite is set.
	Add(ctx context.Context, items []record.Record, opts PutOptions) (Result, error)

	// Delete removes the given ids and renumbers positions. Unknown ids are
	// ignored.
	Delete(ctx context.Context, ids []ID) (Result, error)

	// Patch applies each update to the stored value of its id.
	Patch(ctx context.Context, updates []PatchUpdate) (Result, error)

	// IsUpdate reports whether item's id already exists.
	IsUpdate(ctx context.Context, item record.Record) (bool, ID, error)
}
