package storage

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces candidate ids. Storage implementations skip
// candidates that are already in use.
type IDGenerator interface {
	Generate() ID
}

// CounterIDs generates "1", "2", "3", ...
//
// Thread-safety: safe for concurrent use via internal mutex.
type CounterIDs struct {
	mu   sync.Mutex
	next int64
}

// NewCounterIDs creates a counter whose first id is "1".
func NewCounterIDs() *CounterIDs {
	return &CounterIDs{}
}

// Generate returns the next counter value.
func (g *CounterIDs) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return strconv.FormatInt(g.next, 10)
}

// UUIDv7IDs generates time-sortable UUIDv7 ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7IDs struct{}

// Generate creates a new UUIDv7 as a hyphenated string. Panics if UUID
// generation fails.
func (UUIDv7IDs) Generate() ID {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedIDs returns predetermined ids, for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []ID
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...ID) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics when all ids have been consumed, to surface test
// misconfiguration.
func (g *FixedIDs) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
