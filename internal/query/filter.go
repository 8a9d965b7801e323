package query

import (
	"github.com/roach88/viewstore/internal/record"
)

// Filter keeps the records matching a predicate, in input order.
type Filter struct {
	pred Predicate
}

func (*Filter) queryNode() {}

// NewFilter creates a filter. A nil predicate matches everything.
func NewFilter(p Predicate) *Filter {
	return &Filter{pred: p}
}

// Predicate returns the filter's predicate.
func (f *Filter) Predicate() Predicate { return f.pred }

// Match reports whether item passes the filter.
func (f *Filter) Match(item record.Record) bool {
	if f.pred == nil {
		return true
	}
	return f.pred.Match(item)
}

func (f *Filter) Apply(items []record.Record) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, item := range items {
		if f.Match(item) {
			out = append(out, item)
		}
	}
	return out
}

func (*Filter) Incremental() bool { return true }

func (*Filter) Kind() Kind { return KindFilter }

func (f *Filter) String() string { return Format(f, nil) }
