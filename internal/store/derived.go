package store

import (
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/stream"
)

// Filter derives a store holding the items p matches.
func (s *Store) Filter(p query.Predicate) *Store {
	return s.derive(query.NewFilter(p))
}

// Sort derives a store ordered by key.
func (s *Store) Sort(key query.SortKey, descending bool) *Store {
	return s.derive(query.NewSort(key, descending))
}

// Range derives a store holding count items starting at offset.
func (s *Store) Range(offset, count int) *Store {
	return s.derive(query.NewRange(offset, count))
}

// Query derives a store transformed by q.
func (s *Store) Query(q query.Query) *Store {
	return s.derive(q)
}

// derive returns a read-through view of s's root whose query is s's query
// extended with q.
func (s *Store) derive(q query.Query) *Store {
	s.mu.RLock()
	base := s.query
	s.mu.RUnlock()
	root := s.authority()

	view := query.Compose(base, q)
	d := &Store{
		name:     s.name,
		logger:   s.logger,
		policy:   root.policy,
		metrics:  root.metrics,
		source:   root,
		query:    view,
		identity: root.Identity(),
		cached:   root.Version(),
		detached: stream.NewSubject[struct{}](),
	}
	d.logger.Debug("derived view", "query", view.String())
	return d
}
