package store

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

type mutateConfig[T any] struct {
	onResult       []func(*action.Result[T])
	allowOverwrite bool
}

// MutateOption configures one mutation.
type MutateOption[T any] func(*mutateConfig[T])

// OnResult registers fn on the action's result stream before the action is
// enqueued, so fn can resolve conflicts.
func OnResult[T any](fn func(*action.Result[T])) MutateOption[T] {
	return func(c *mutateConfig[T]) { c.onResult = append(c.onResult, fn) }
}

// AllowOverwrite lets Add replace existing ids.
func AllowOverwrite() MutateOption[record.Record] {
	return func(c *mutateConfig[record.Record]) { c.allowOverwrite = true }
}

// op describes how the data of one mutation kind reaches storage.
type op[T any] struct {
	typ  storage.OpType
	idOf func(T) (storage.ID, bool)
	run  func(ctx context.Context, data []T) (storage.Result, error)

	// failedAt, when set, reports the input positions a failed run left
	// unwritten. Without it a failed run failed as a whole.
	failedAt func() []int
}

// Add inserts items. Existing ids fail the batch with OVERWRITE_REJECTED
// unless AllowOverwrite is given.
func (s *Store) Add(ctx context.Context, items []record.Record, opts ...MutateOption[record.Record]) *action.Action[record.Record] {
	root := s.authority()
	c := applyMutateOptions(opts)
	return mutate(ctx, root, op[record.Record]{
		typ:  storage.OpAdd,
		idOf: root.Identity().Identify,
		run: func(ctx context.Context, data []record.Record) (storage.Result, error) {
			return root.backend().Add(ctx, data, storage.PutOptions{AllowOverwrite: c.allowOverwrite})
		},
	}, items, c)
}

// Put inserts new ids and replaces existing ones.
func (s *Store) Put(ctx context.Context, items []record.Record, opts ...MutateOption[record.Record]) *action.Action[record.Record] {
	root := s.authority()
	c := applyMutateOptions(opts)
	// Rounds of one action run sequentially, so failed is never shared.
	var failed []int
	return mutate(ctx, root, op[record.Record]{
		typ:  storage.OpPut,
		idOf: root.Identity().Identify,
		run: func(ctx context.Context, data []record.Record) (storage.Result, error) {
			var (
				res storage.Result
				err error
			)
			res, failed, err = root.putPartitioned(ctx, data)
			return res, err
		},
		failedAt: func() []int { return failed },
	}, items, c)
}

// Patch applies each update to the stored value of its id.
func (s *Store) Patch(ctx context.Context, updates []storage.PatchUpdate, opts ...MutateOption[storage.PatchUpdate]) *action.Action[storage.PatchUpdate] {
	root := s.authority()
	return mutate(ctx, root, op[storage.PatchUpdate]{
		typ:  storage.OpPatch,
		idOf: func(u storage.PatchUpdate) (storage.ID, bool) { return u.ID, u.ID != "" },
		run: func(ctx context.Context, data []storage.PatchUpdate) (storage.Result, error) {
			return root.backend().Patch(ctx, data)
		},
	}, updates, applyMutateOptions(opts))
}

// Delete removes ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []storage.ID, opts ...MutateOption[storage.ID]) *action.Action[storage.ID] {
	root := s.authority()
	return mutate(ctx, root, op[storage.ID]{
		typ:  storage.OpDelete,
		idOf: func(id storage.ID) (storage.ID, bool) { return id, id != "" },
		run: func(ctx context.Context, data []storage.ID) (storage.Result, error) {
			return root.backend().Delete(ctx, data)
		},
	}, ids, applyMutateOptions(opts))
}

func applyMutateOptions[T any](opts []MutateOption[T]) mutateConfig[T] {
	var c mutateConfig[T]
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// mutate wraps data in an action targeting the current version of root and
// enqueues it.
func mutate[T any](ctx context.Context, root *Store, o op[T], data []T, c mutateConfig[T]) *action.Action[T] {
	targeted := root.Version()

	var round func(data []T, mediate bool) action.Update[T]
	round = func(data []T, mediate bool) action.Update[T] {
		u := runRound(ctx, root, o, data, targeted, mediate)
		if u.Err == nil && len(u.Failed) > 0 {
			u.Retry = func(chosen []T) action.Update[T] { return round(chosen, false) }
		}
		return u
	}

	var rejected error
	a := action.New(o.typ, data, targeted, func() action.Update[T] {
		if rejected != nil {
			return action.Update[T]{Failed: slices.Clone(data), Err: rejected}
		}
		root.mu.RLock()
		mediate := root.mediate
		root.mu.RUnlock()
		return round(data, mediate)
	})
	for _, fn := range c.onResult {
		a.OnResult(fn)
	}
	if err := root.Manager().Enqueue(a); err != nil {
		rejected = err
		a.Do(nil)
	}
	return a
}

// runRound executes one round: optional mediation against the live
// ItemMap, the storage call, and the commit.
func runRound[T any](ctx context.Context, s *Store, o op[T], data []T, targeted int64, mediate bool) action.Update[T] {
	fresh, stale, current := data, []T(nil), []record.Record(nil)
	if mediate {
		fresh, stale, current = partitionStale(s, o.idOf, data, targeted)
	}

	u := action.Update[T]{Failed: stale, Current: current}
	if len(stale) > 0 {
		s.logger.Debug("conflicts detected", "op", o.typ, "targeted", targeted, "count", len(stale))
	}
	if len(fresh) == 0 {
		return u
	}

	s.writeMu.Lock()
	res, err := o.run(ctx, fresh)
	ev, cerr := s.commit(ctx, res)
	s.writeMu.Unlock()
	s.publish(ev)

	if err != nil {
		// Partitioned puts can fail on one side after the other was written.
		if cerr != nil {
			s.logger.Error("commit after failed round", "op", o.typ, "error", cerr)
		}
		s.logger.Debug("round failed", "op", o.typ, "error", err)
		written, failed, failedCurrent := splitFailed(o, fresh, res)
		if len(written) > 0 {
			u.Successful = written
			u.Items = res.Successful
		}
		u.Failed = append(failed, stale...)
		u.Current = append(failedCurrent, current...)
		u.Err = err
		return u
	}

	u.Successful = fresh
	u.Items = res.Successful
	u.Err = cerr
	return u
}

// splitFailed separates the data of a failed run into what was written and
// what was not, with the current values storage reported for the latter.
func splitFailed[T any](o op[T], fresh []T, res storage.Result) (written, failed []T, current []record.Record) {
	if o.failedAt == nil {
		current = make([]record.Record, len(fresh))
		if len(res.Current) == len(fresh) {
			copy(current, res.Current)
		}
		return nil, slices.Clone(fresh), current
	}
	at := o.failedAt()
	isFailed := make([]bool, len(fresh))
	current = make([]record.Record, len(at))
	copy(current, res.Current)
	for _, i := range at {
		isFailed[i] = true
		failed = append(failed, fresh[i])
	}
	for i, d := range fresh {
		if !isFailed[i] {
			written = append(written, d)
		}
	}
	return written, failed, current
}

// partitionStale splits data into the entries whose id is unchanged since
// version and the ones written after it, with their current values.
func partitionStale[T any](s *Store, idOf func(T) (storage.ID, bool), data []T, version int64) (fresh, stale []T, current []record.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range data {
		if id, ok := idOf(d); ok {
			if cur, isStale := s.items.stale(id, version); isStale {
				stale = append(stale, d)
				current = append(current, cur)
				continue
			}
		}
		fresh = append(fresh, d)
	}
	return fresh, stale, current
}

// commit bumps the version for an accepted round and refreshes the live
// index. It returns the round's event, or nil when the round changed
// nothing and is not committed.
func (s *Store) commit(ctx context.Context, res storage.Result) (*Event, error) {
	if len(res.SuccessfulIDs) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	v := s.version
	var err error
	if s.live {
		err = s.rebuild(ctx, res.SuccessfulIDs, v)
	}
	s.logger.Debug("round committed", "op", res.Type, "version", v, "count", len(res.SuccessfulIDs))
	return &Event{
		Type:    res.Type,
		Version: v,
		IDs:     slices.Clone(res.SuccessfulIDs),
		Items:   res.Successful,
	}, err
}

// publish delivers a committed round to observers. It runs without store
// locks held.
func (s *Store) publish(ev *Event) {
	if ev == nil {
		return
	}
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	hub.Next(*ev)
}

// isUpdate classifies item against the live index when there is one and
// against storage otherwise.
func (s *Store) isUpdate(ctx context.Context, item record.Record) (bool, error) {
	s.mu.RLock()
	live, items, identity, st := s.live, s.items, s.identity, s.storage
	s.mu.RUnlock()
	if live {
		id, ok := identity.Identify(item)
		return ok && items.Has(id), nil
	}
	upd, _, err := st.IsUpdate(ctx, item)
	return upd, err
}

// putPartitioned writes new and existing items through storage Add and Put
// concurrently and merges both results in input order. On failure it also
// returns the ascending input positions that were not written.
func (s *Store) putPartitioned(ctx context.Context, items []record.Record) (storage.Result, []int, error) {
	var adds, puts side
	for i, item := range items {
		upd, err := s.isUpdate(ctx, item)
		if err != nil {
			all := make([]int, len(items))
			for k := range all {
				all[k] = k
			}
			return storage.Result{Type: storage.OpPut}, all, err
		}
		if upd {
			puts.idx = append(puts.idx, i)
		} else {
			adds.idx = append(adds.idx, i)
		}
	}

	// Sides share ctx but not cancellation: one side failing leaves the
	// other to finish and report its own outcome.
	st := s.backend()
	var g errgroup.Group
	if len(adds.idx) > 0 {
		g.Go(func() error {
			adds.res, adds.err = st.Add(ctx, pick(items, adds.idx), storage.PutOptions{AllowOverwrite: true})
			return adds.err
		})
	}
	if len(puts.idx) > 0 {
		g.Go(func() error {
			puts.res, puts.err = st.Put(ctx, pick(items, puts.idx), storage.PutOptions{})
			return puts.err
		})
	}
	err := g.Wait()
	res, failed := mergeResults(items, adds, puts)
	return res, failed, err
}

// side is one partition of a put: its input positions and storage outcome.
type side struct {
	idx []int
	res storage.Result
	err error
}

func pick(items []record.Record, idx []int) []record.Record {
	out := make([]record.Record, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}

// mergeResults interleaves partition results back into input order. A side
// that failed contributes its whole input to Failed, with the current values
// its storage call reported.
func mergeResults(items []record.Record, sides ...side) (storage.Result, []int) {
	type slot struct {
		item    record.Record
		id      storage.ID
		ok      bool
		failed  bool
		current record.Record
	}
	slots := make([]slot, len(items))
	for _, sd := range sides {
		if sd.err != nil {
			aligned := len(sd.res.Current) == len(sd.idx)
			for k, i := range sd.idx {
				slots[i].failed = true
				if aligned {
					slots[i].current = sd.res.Current[k]
				}
			}
			continue
		}
		for k, i := range sd.idx {
			if k < len(sd.res.Successful) && k < len(sd.res.SuccessfulIDs) {
				slots[i] = slot{item: sd.res.Successful[k], id: sd.res.SuccessfulIDs[k], ok: true}
			}
		}
	}

	out := storage.Result{Type: storage.OpPut}
	var failed []int
	for i, sl := range slots {
		switch {
		case sl.failed:
			failed = append(failed, i)
			out.Failed = append(out.Failed, items[i])
			out.Current = append(out.Current, sl.current)
		case sl.ok:
			out.Successful = append(out.Successful, sl.item)
			out.SuccessfulIDs = append(out.SuccessfulIDs, sl.id)
		}
	}
	return out, failed
}
