package store

import (
	"context"
	"slices"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// Event describes one accepted mutation round.
type Event struct {
	Type    storage.OpType
	Version int64

	// IDs are the mutated ids; Items are the stored values, or the removed
	// values for deletes. Both are in storage order.
	IDs   []storage.ID
	Items []record.Record

	// Synthetic marks the add that primes a new subscriber with the
	// contents at Version.
	Synthetic bool
}

// restrict returns the part of e that touches watched ids.
func (e Event) restrict(watched map[storage.ID]bool) Event {
	out := Event{Type: e.Type, Version: e.Version, Synthetic: e.Synthetic}
	for i, id := range e.IDs {
		if !watched[id] {
			continue
		}
		out.IDs = append(out.IDs, id)
		if i < len(e.Items) {
			out.Items = append(out.Items, e.Items[i])
		}
	}
	return out
}

// Observe streams every accepted mutation round, starting with a synthetic
// add of the current contents. On a derived store the synthetic add holds
// the view's contents and later events are the source's rounds; releasing
// the derived store completes the stream.
func (s *Store) Observe() *stream.Stream[Event] {
	s.mu.RLock()
	src, view, detached := s.source, s.query, s.detached
	s.mu.RUnlock()
	if src == nil {
		return s.observeRoot()
	}
	identity := src.Identity()
	return stream.Until(stream.Map(src.observeRoot(), func(e Event) Event {
		if !e.Synthetic {
			return e
		}
		e.Items = view.Apply(e.Items)
		e.IDs = storage.IdentifyAll(identity, e.Items...)
		return e
	}), detached.Stream())
}

func (s *Store) observeRoot() *stream.Stream[Event] {
	return stream.New(func(sink *stream.Sink[Event]) func() {
		sink.Pause()
		defer sink.Resume()

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		s.mu.RLock()
		defer s.mu.RUnlock()
		snap := s.version
		items, err := s.snapshotLocked()
		if err != nil {
			sink.Error(err)
			return nil
		}
		sub := s.hub.Subscribe(stream.Observer[Event]{
			Next: func(e Event) {
				if e.Version > snap {
					sink.Next(e)
				}
			},
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		sink.Next(Event{
			Type:      storage.OpAdd,
			Version:   snap,
			IDs:       storage.IdentifyAll(s.identity, items...),
			Items:     items,
			Synthetic: true,
		})
		return sub.Unsubscribe
	})
}

// snapshotLocked returns the current contents. Called with s.mu held.
func (s *Store) snapshotLocked() ([]record.Record, error) {
	if s.live {
		return s.items.Items(), nil
	}
	return s.storage.Fetch(context.Background(), nil)
}

// ObserveIDs streams the rounds touching ids, restricted to them. It fails
// with NOT_FOUND when an id does not exist at subscribe time. Deleting a
// watched id emits the deletion and stops watching it; the stream completes
// once no watched id remains. On a derived store the stream also completes
// when the store is released.
func (s *Store) ObserveIDs(ctx context.Context, ids ...storage.ID) *stream.Stream[Event] {
	s.mu.RLock()
	src, detached := s.source, s.detached
	s.mu.RUnlock()
	if src == nil {
		return s.observeIDs(ctx, s, ids)
	}
	return stream.Until(s.observeIDs(ctx, src, ids), detached.Stream())
}

func (s *Store) observeIDs(ctx context.Context, root *Store, ids []storage.ID) *stream.Stream[Event] {
	return stream.New(func(sink *stream.Sink[Event]) func() {
		sink.Pause()
		defer sink.Resume()

		root.writeMu.Lock()
		defer root.writeMu.Unlock()
		root.mu.RLock()
		defer root.mu.RUnlock()
		missing, err := root.missingLocked(ctx, ids)
		if err != nil {
			sink.Error(err)
			return nil
		}
		if len(missing) > 0 {
			sink.Error(errs.NotFound(missing...))
			return nil
		}

		snap := root.version
		watched := make(map[storage.ID]bool, len(ids))
		for _, id := range ids {
			watched[id] = true
		}
		if len(watched) == 0 {
			sink.Complete()
			return nil
		}
		sub := root.hub.Subscribe(stream.Observer[Event]{
			Next: func(e Event) {
				if e.Version <= snap {
					return
				}
				scoped := e.restrict(watched)
				if len(scoped.IDs) == 0 {
					return
				}
				sink.Next(scoped)
				if e.Type != storage.OpDelete {
					return
				}
				for _, id := range scoped.IDs {
					delete(watched, id)
				}
				if len(watched) == 0 {
					sink.Complete()
				}
			},
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		return sub.Unsubscribe
	})
}

// missingLocked returns the ids that do not exist. Called with s.mu held.
func (s *Store) missingLocked(ctx context.Context, ids []storage.ID) ([]storage.ID, error) {
	var missing []storage.ID
	if s.live {
		for _, id := range ids {
			if !s.items.Has(id) {
				missing = append(missing, id)
			}
		}
		return missing, nil
	}
	slots, err := s.storage.Get(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i, slot := range slots {
		if slot == nil {
			missing = append(missing, ids[i])
		}
	}
	return slices.Compact(missing), nil
}
