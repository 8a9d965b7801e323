package query

import "github.com/roach88/viewstore/internal/record"

// Range keeps the records at positions [Offset, Offset+Count), clamped to
// the input length.
type Range struct {
	offset int
	count  int
}

func (*Range) queryNode() {}

// NewRange creates a range stage. Negative values are treated as zero.
func NewRange(offset, count int) *Range {
	return &Range{offset: max(offset, 0), count: max(count, 0)}
}

func (r *Range) Offset() int { return r.offset }

func (r *Range) Count() int { return r.count }

func (r *Range) Apply(items []record.Record) []record.Record {
	if r.offset >= len(items) {
		return []record.Record{}
	}
	end := len(items)
	if r.count < end-r.offset {
		end = r.offset + r.count
	}
	out := make([]record.Record, end-r.offset)
	copy(out, items[r.offset:end])
	return out
}

// Incremental is always false: membership depends on global position.
func (*Range) Incremental() bool { return false }

func (*Range) Kind() Kind { return KindRange }

func (r *Range) String() string { return Format(r, nil) }
