package config

import (
	"context"
	"fmt"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/sqlstorage"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/store"
)

// ConflictPolicy returns the conflict policy named by the definition.
func (d *Definition) ConflictPolicy() action.Policy {
	if d.Policy.Kind == PolicyAggressive {
		return action.Aggressive(d.Policy.MaxRetries)
	}
	return action.Passive()
}

// Options returns the store options the definition describes, excluding
// storage.
func (d *Definition) Options() []store.Option {
	return []store.Option{
		store.WithName(d.Name),
		store.WithIdentity(storage.IdentityField(d.Identity)),
		store.WithMediateDataConflicts(d.MediateDataConflicts),
		store.WithTracking(d.Tracking),
		store.WithPolicy(d.ConflictPolicy()),
	}
}

// Open creates the root store. The returned close function releases the
// store and closes any database it opened; it is safe to call once.
func (d *Definition) Open(ctx context.Context, extra ...store.Option) (*store.Store, func() error, error) {
	opts := d.Options()
	closeStorage := func() error { return nil }

	switch d.Storage.Kind {
	case StorageSQLite:
		db, err := sqlstorage.Open(d.Storage.Path,
			storage.WithIdentity(storage.IdentityField(d.Identity)),
			storage.WithData(d.Data))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		opts = append(opts, store.WithStorage(db))
		closeStorage = db.Close
	default:
		opts = append(opts, store.WithData(d.Data))
	}

	s, err := store.New(append(opts, extra...)...)
	if err != nil {
		closeStorage()
		return nil, nil, err
	}
	closeFn := func() error {
		rerr := s.Release(ctx)
		if cerr := closeStorage(); cerr != nil {
			return cerr
		}
		return rerr
	}
	return s, closeFn, nil
}

// OpenView derives the named view from root, tracking it when the view
// asks for it.
func (d *Definition) OpenView(ctx context.Context, root *store.Store, name string) (*store.Store, error) {
	spec, ok := d.View(name)
	if !ok {
		return nil, fmt.Errorf("unknown view %q", name)
	}
	q, err := spec.Query()
	if err != nil {
		return nil, err
	}
	view := root.Query(q)
	if spec.Track {
		if err := view.Track(ctx); err != nil {
			return nil, fmt.Errorf("track view %s: %w", name, err)
		}
	}
	return view, nil
}
