package query

import (
	"slices"

	"github.com/roach88/viewstore/internal/record"
)

// Kind names a query variant.
type Kind string

const (
	KindFilter   Kind = "filter"
	KindSort     Kind = "sort"
	KindRange    Kind = "range"
	KindSelect   Kind = "select"
	KindCompound Kind = "compound"
)

// Query is a pure transformation of an ordered record sequence.
//
// This is a sealed interface. Implementations: *Filter, *Sort, *Range,
// *Select, *Compound.
type Query interface {
	// Apply returns the transformed sequence. The input slice is not
	// modified; records may be shared with the input unless the query
	// builds new ones (Select).
	Apply(items []record.Record) []record.Record

	// Incremental reports whether the query can be maintained from deltas.
	Incremental() bool

	Kind() Kind

	// String renders the query with the default serializer.
	String() string

	queryNode()
}

// Compound is an ordered pipeline of stages. It is never nested: composing
// with another compound splices that compound's stages.
type Compound struct {
	stages []Query
}

func (*Compound) queryNode() {}

// NewCompound builds a compound from stages, flattening nested compounds
// and skipping nil stages.
func NewCompound(stages ...Query) *Compound {
	c := &Compound{}
	for _, q := range stages {
		c.stages = appendStage(c.stages, q)
	}
	return c
}

func appendStage(stages []Query, q Query) []Query {
	switch v := q.(type) {
	case nil:
		return stages
	case *Compound:
		if v == nil {
			return stages
		}
		return append(stages, v.stages...)
	default:
		return append(stages, q)
	}
}

// WithQuery returns a new compound with q appended as the final stage.
// The receiver is not modified.
func (c *Compound) WithQuery(q Query) *Compound {
	next := &Compound{stages: slices.Clone(c.Stages())}
	next.stages = appendStage(next.stages, q)
	return next
}

// Stages returns a copy of the stage list.
func (c *Compound) Stages() []Query {
	if c == nil {
		return nil
	}
	return slices.Clone(c.stages)
}

// Len returns the number of stages.
func (c *Compound) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stages)
}

// Apply runs every stage left to right.
func (c *Compound) Apply(items []record.Record) []record.Record {
	out := items
	for _, q := range c.Stages() {
		out = q.Apply(out)
	}
	if out == nil {
		return []record.Record{}
	}
	return out
}

// Incremental is the conjunction of all stage flags. An empty compound is
// incremental.
func (c *Compound) Incremental() bool {
	for _, q := range c.Stages() {
		if !q.Incremental() {
			return false
		}
	}
	return true
}

func (*Compound) Kind() Kind { return KindCompound }

func (c *Compound) String() string { return Format(c, nil) }

// Stages returns the flattened stages of q. A non-compound query is its own
// single stage; nil has none.
func Stages(q Query) []Query {
	switch v := q.(type) {
	case nil:
		return nil
	case *Compound:
		return v.Stages()
	default:
		return []Query{q}
	}
}

// Compose appends q to base, returning a compound in every case.
func Compose(base Query, q Query) *Compound {
	return NewCompound(base).WithQuery(q)
}
