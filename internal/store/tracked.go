package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// Change locates one view entry. Index is the position after the round and
// PreviousIndex the position before it; the one that does not apply is -1.
type Change struct {
	ID            storage.ID
	Index         int
	PreviousIndex int
	Item          record.Record
}

// ViewUpdate describes how one round changed a tracked view.
type ViewUpdate struct {
	Version int64

	Added   []Change
	Removed []Change
	Moved   []Change

	// Updated lists entries present before and after whose value changed.
	Updated []Change

	BeforeAll []record.Record
	AfterAll  []record.Record

	// Initial marks the update that primes a new subscriber.
	Initial bool
}

// Empty reports whether the update changed nothing.
func (u ViewUpdate) Empty() bool {
	return len(u.Added) == 0 && len(u.Removed) == 0 && len(u.Moved) == 0 && len(u.Updated) == 0
}

type viewEntry struct {
	id   storage.ID
	item record.Record
}

type tracker struct {
	root     *Store
	view     *query.Compound
	identity storage.Identity
	logger   *slog.Logger

	mu      sync.Mutex
	raw     []record.Record // source collection in storage order
	entries []viewEntry
	version int64
	hub     *stream.Subject[ViewUpdate]
	sub     *stream.Subscription
}

// Track puts a derived store into tracking mode: it keeps a local copy of
// its source, maintained from the source's events, and answers Fetch from
// it. Tracking an already tracked store is a no-op.
func (s *Store) Track(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return ErrNotDerived
	}
	if s.tracker != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tracker{
		root:     s.source,
		view:     s.query,
		identity: s.source.Identity(),
		logger:   s.logger,
		hub:      stream.NewSubject[ViewUpdate](),
	}
	var primeErr error
	t.sub = s.source.observeRoot().Subscribe(stream.Observer[Event]{
		Next:  t.apply,
		Error: func(err error) { primeErr = err },
		Complete: func() {
			t.hub.Complete()
		},
	})
	if primeErr != nil {
		t.sub.Unsubscribe()
		return primeErr
	}
	s.tracker = t
	s.logger.Debug("tracking view", "query", s.query.String(), "incremental", s.query.Incremental())
	return nil
}

// Tracking reports whether s is a tracked view.
func (s *Store) Tracking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker != nil
}

// ObserveTracked streams view updates of a tracked store, starting with an
// initial update that adds every current entry. It errors with
// ErrNotDerived when s is not tracked.
func (s *Store) ObserveTracked() *stream.Stream[ViewUpdate] {
	s.mu.RLock()
	t := s.tracker
	s.mu.RUnlock()
	if t == nil {
		return stream.Fail[ViewUpdate](ErrNotDerived)
	}
	return stream.New(func(sink *stream.Sink[ViewUpdate]) func() {
		sink.Pause()
		defer sink.Resume()

		t.mu.Lock()
		defer t.mu.Unlock()
		snap := t.version
		sub := t.hub.Subscribe(stream.Observer[ViewUpdate]{
			Next: func(u ViewUpdate) {
				if u.Version > snap {
					sink.Next(u)
				}
			},
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		sink.Next(diffView(nil, t.entries, snap, true))
		return sub.Unsubscribe
	})
}

func (t *tracker) currentVersion() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

func (t *tracker) items() []record.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]record.Record, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.item.Clone()
	}
	return out
}

func (t *tracker) stop() {
	t.sub.Unsubscribe()
	t.hub.Complete()
}

// apply folds one source event into the view and publishes the difference.
func (t *tracker) apply(e Event) {
	t.mu.Lock()
	switch {
	case e.Synthetic:
		t.raw = storage.CloneAll(e.Items)
	case t.view.Incremental():
		t.raw = applyDelta(t.identity, t.raw, e)
	default:
		all, err := t.root.backend().Fetch(context.Background(), nil)
		if err != nil {
			t.logger.Warn("refetch failed, applying delta", "version", e.Version, "error", err)
			t.raw = applyDelta(t.identity, t.raw, e)
		} else {
			t.raw = all
		}
	}
	before := t.entries
	t.entries = evaluate(t.view, t.identity, t.raw)
	t.version = e.Version
	upd := diffView(before, t.entries, e.Version, false)
	t.mu.Unlock()

	if e.Synthetic || upd.Empty() {
		return
	}
	t.hub.Next(upd)
}

// applyDelta applies a mutation round to a local copy of the source
// collection, mirroring storage semantics: new ids append, existing ids are
// replaced in place, deletes close the gap.
func applyDelta(identity storage.Identity, raw []record.Record, e Event) []record.Record {
	pos := make(map[storage.ID]int, len(raw))
	for i, item := range raw {
		if id, ok := identity.Identify(item); ok {
			pos[id] = i
		}
	}
	if e.Type == storage.OpDelete {
		gone := make(map[storage.ID]bool, len(e.IDs))
		for _, id := range e.IDs {
			gone[id] = true
		}
		return slices.DeleteFunc(slices.Clone(raw), func(item record.Record) bool {
			id, ok := identity.Identify(item)
			return ok && gone[id]
		})
	}
	out := slices.Clone(raw)
	for i, item := range e.Items {
		id := ""
		if i < len(e.IDs) {
			id = e.IDs[i]
		}
		if p, ok := pos[id]; ok {
			out[p] = item.Clone()
			continue
		}
		pos[id] = len(out)
		out = append(out, item.Clone())
	}
	return out
}

// evaluate runs the view stage by stage over raw entries, so ids survive a
// Select that drops the identity field.
func evaluate(view *query.Compound, identity storage.Identity, raw []record.Record) []viewEntry {
	entries := make([]viewEntry, 0, len(raw))
	for _, item := range raw {
		id, _ := identity.Identify(item)
		entries = append(entries, viewEntry{id: id, item: item})
	}
	for _, stage := range view.Stages() {
		switch st := stage.(type) {
		case *query.Filter:
			entries = slices.DeleteFunc(entries, func(e viewEntry) bool { return !st.Match(e.item) })
		case *query.Sort:
			slices.SortStableFunc(entries, func(a, b viewEntry) int { return st.Compare(a.item, b.item) })
		case *query.Range:
			lo, hi := min(st.Offset(), len(entries)), len(entries)
			if st.Count() < hi-lo {
				hi = lo + st.Count()
			}
			entries = slices.Clone(entries[lo:hi])
		case *query.Select:
			for i := range entries {
				entries[i].item = st.Project(entries[i].item)
			}
		}
	}
	return entries
}

// diffView compares two evaluations of a view.
func diffView(before, after []viewEntry, version int64, initial bool) ViewUpdate {
	upd := ViewUpdate{
		Version:   version,
		BeforeAll: entryItems(before),
		AfterAll:  entryItems(after),
		Initial:   initial,
	}
	prev := make(map[storage.ID]int, len(before))
	for i, e := range before {
		prev[e.id] = i
	}
	next := make(map[storage.ID]int, len(after))
	for i, e := range after {
		next[e.id] = i
	}

	for i, e := range before {
		if _, ok := next[e.id]; !ok {
			upd.Removed = append(upd.Removed, Change{ID: e.id, Index: -1, PreviousIndex: i, Item: e.item.Clone()})
		}
	}
	for i, e := range after {
		j, ok := prev[e.id]
		if !ok {
			upd.Added = append(upd.Added, Change{ID: e.id, Index: i, PreviousIndex: -1, Item: e.item.Clone()})
			continue
		}
		if i != j {
			upd.Moved = append(upd.Moved, Change{ID: e.id, Index: i, PreviousIndex: j, Item: e.item.Clone()})
		}
		if !record.Equal(before[j].item, e.item) {
			upd.Updated = append(upd.Updated, Change{ID: e.id, Index: i, PreviousIndex: j, Item: e.item.Clone()})
		}
	}
	return upd
}

func entryItems(entries []viewEntry) []record.Record {
	out := make([]record.Record, len(entries))
	for i, e := range entries {
		out[i] = e.item.Clone()
	}
	return out
}
