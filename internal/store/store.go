package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// ErrNotDerived is returned by operations that only apply to derived stores.
var ErrNotDerived = errors.New("store is not derived from a source")

// Store is a versioned, observable collection.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized by the root's action manager.
type Store struct {
	name   string
	logger *slog.Logger

	policy  action.Policy
	metrics *action.Metrics

	// writeMu spans a round's storage write and its version bump, so
	// snapshots taken under it never see a write ahead of its version.
	writeMu sync.Mutex

	mu       sync.RWMutex
	source   *Store          // root this store reads through to; nil for roots
	query    *query.Compound // view query of a derived store
	storage  storage.Storage
	identity storage.Identity
	manager  *action.Manager
	mediate  bool
	live     bool
	version  int64
	cached   int64 // source version last observed by a derived store
	items    *ItemMap
	hub      *stream.Subject[Event]
	tracker  *tracker
	released bool

	// detached completes when a derived store is released; streams handed
	// out while it read through to its source end with it.
	detached *stream.Subject[struct{}]
}

// New creates a root store. Without WithStorage the store keeps its data in
// a storage.Memory.
func New(opts ...Option) (*Store, error) {
	c := config{logger: slog.Default(), policy: action.Passive()}
	for _, opt := range opts {
		opt(&c)
	}

	ctx := context.Background()
	st, identity := c.storage, c.identity
	if st == nil {
		var mopts []storage.Option
		if identity != nil {
			mopts = append(mopts, storage.WithIdentity(identity))
		}
		if c.ids != nil {
			mopts = append(mopts, storage.WithIDGenerator(c.ids))
		}
		mopts = append(mopts, storage.WithData(c.data))
		mem, err := storage.NewMemory(mopts...)
		if err != nil {
			return nil, fmt.Errorf("create memory storage: %w", err)
		}
		st, identity = mem, mem.Identity()
	} else {
		if identity == nil {
			identity = identityOf(st)
		}
		if len(c.data) > 0 {
			if _, err := st.Add(ctx, c.data, storage.PutOptions{}); err != nil {
				return nil, fmt.Errorf("seed storage: %w", err)
			}
		}
	}

	s := &Store{
		name:     c.name,
		logger:   c.logger.With("store", c.name),
		policy:   c.policy,
		metrics:  c.metrics,
		storage:  st,
		identity: identity,
		mediate:  c.mediate,
		live:     c.tracking || c.mediate,
		hub:      stream.NewSubject[Event](),
	}
	s.manager = s.newManager()
	if s.live {
		if err := s.rebuild(ctx, nil, 0); err != nil {
			return nil, err
		}
	}
	s.logger.Info("store created", "live", s.live, "mediate", s.mediate, "policy", s.policy.Name())
	return s, nil
}

func (s *Store) newManager() *action.Manager {
	return action.NewManager(
		action.WithPolicy(s.policy),
		action.WithMetrics(s.metrics),
		action.WithLogger(s.logger),
	)
}

func identityOf(st storage.Storage) storage.Identity {
	if ider, ok := st.(interface{ Identity() storage.Identity }); ok {
		return ider.Identity()
	}
	return storage.DefaultIdentity()
}

// authority returns the store that owns storage and the action queue for s.
func (s *Store) authority() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source != nil {
		return s.source
	}
	return s
}

// Name returns the configured name.
func (s *Store) Name() string { return s.name }

// Derived reports whether s reads through to a source store.
func (s *Store) Derived() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source != nil
}

// ViewQuery returns the query a derived store applies to its source, or
// nil for a root.
func (s *Store) ViewQuery() *query.Compound {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Version returns the store version. Derived stores report their source's.
func (s *Store) Version() int64 {
	s.mu.RLock()
	src := s.source
	v := s.version
	s.mu.RUnlock()
	if src != nil {
		return src.Version()
	}
	return v
}

// Stale reports whether a derived store's last observed version differs
// from its source's. Roots are never stale.
func (s *Store) Stale() bool {
	s.mu.RLock()
	src, cached, t := s.source, s.cached, s.tracker
	s.mu.RUnlock()
	if src == nil {
		return false
	}
	if t != nil {
		cached = t.currentVersion()
	}
	return cached != src.Version()
}

// Identity returns the identity strategy.
func (s *Store) Identity() storage.Identity {
	root := s.authority()
	root.mu.RLock()
	defer root.mu.RUnlock()
	return root.identity
}

// Identify derives the id of each item; "" marks an item without one.
func (s *Store) Identify(items ...record.Record) []storage.ID {
	return storage.IdentifyAll(s.Identity(), items...)
}

// CreateID returns an id not currently in use.
func (s *Store) CreateID(ctx context.Context) (storage.ID, error) {
	return s.authority().backend().CreateID(ctx)
}

// Manager returns the action manager executing this store's mutations.
func (s *Store) Manager() *action.Manager {
	root := s.authority()
	root.mu.RLock()
	defer root.mu.RUnlock()
	return root.manager
}

func (s *Store) backend() storage.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage
}

// Get returns one slot per requested id, nil when absent.
func (s *Store) Get(ctx context.Context, ids ...storage.ID) ([]record.Record, error) {
	return s.authority().backend().Get(ctx, ids...)
}

// Entry returns the live index entry for id. It reports false for stores
// that keep no live index.
func (s *Store) Entry(id storage.ID) (Entry, bool) {
	root := s.authority()
	root.mu.RLock()
	defer root.mu.RUnlock()
	return root.items.Get(id)
}

// Fetch returns the store's contents transformed by q (which may be nil).
// A derived store applies its view query first; a tracked store answers
// from its view.
func (s *Store) Fetch(ctx context.Context, q query.Query) ([]record.Record, error) {
	s.mu.RLock()
	src, view, t := s.source, s.query, s.tracker
	s.mu.RUnlock()

	if t != nil {
		items := t.items()
		if q == nil {
			return items, nil
		}
		return q.Apply(items), nil
	}
	if src == nil {
		return s.backend().Fetch(ctx, q)
	}

	version := src.Version()
	items, err := src.backend().Fetch(ctx, query.Compose(view, q))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cached = version
	s.mu.Unlock()
	return items, nil
}

// rebuild re-indexes the live ItemMap from storage and stamps ids with
// version. Called with s.mu held.
func (s *Store) rebuild(ctx context.Context, ids []storage.ID, version int64) error {
	all, err := s.storage.Fetch(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuild item map: %w", err)
	}
	stamped := make(map[storage.ID]bool, len(ids))
	for _, id := range ids {
		stamped[id] = true
	}
	prev := s.items
	m, err := BuildItemMap(s.identity, all, func(id storage.ID) int64 {
		if stamped[id] {
			return version
		}
		return prev.versionOf(id)
	})
	if err != nil {
		return err
	}
	s.items = m
	return nil
}

// Release detaches the store.
//
// On a root it closes the action queue, waits for pending actions and
// completes every observer. On a derived store it stops tracking and
// leaves the store owning a private copy of its current contents, backed
// by its own storage.Memory and manager.
func (s *Store) Release(ctx context.Context) error {
	if !s.Derived() {
		s.mu.Lock()
		if s.released {
			s.mu.Unlock()
			return nil
		}
		s.released = true
		manager, hub := s.manager, s.hub
		s.mu.Unlock()

		err := manager.Release(ctx)
		hub.Complete()
		s.logger.Info("store released", "version", s.Version())
		return err
	}
	return s.detach(ctx)
}

func (s *Store) detach(ctx context.Context) error {
	items, err := s.Fetch(ctx, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	t := s.tracker
	s.tracker = nil
	s.mu.Unlock()
	if t != nil {
		t.stop()
	}

	s.mu.Lock()
	src, detached := s.source, s.detached
	if src == nil {
		s.mu.Unlock()
		return nil
	}

	src.mu.RLock()
	identity, mediate, live, version := src.identity, src.mediate, src.live, src.version
	src.mu.RUnlock()

	mem, err := storage.NewMemory(storage.WithIdentity(identity), storage.WithData(items))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("copy view: %w", err)
	}
	s.source = nil
	s.query = nil
	s.storage = mem
	s.identity = mem.Identity()
	s.mediate = mediate
	s.live = live
	s.version = version
	s.hub = stream.NewSubject[Event]()
	s.manager = s.newManager()
	s.detached = nil
	if s.live {
		err = s.rebuild(ctx, nil, 0)
	}
	s.mu.Unlock()

	detached.Complete()
	if err != nil {
		return err
	}
	s.logger.Info("derived store released", "items", mem.Len(), "version", version)
	return nil
}
