package store

import (
	"context"
	"sync"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// Transaction accumulates mutations against a store and submits them
// together. Nothing reaches the store before Commit.
type Transaction struct {
	store *Store

	mu      sync.Mutex
	pending []func(context.Context, func(action.Report)) *stream.Stream[action.Report]
}

// Transaction starts an empty transaction on s.
func (s *Store) Transaction() *Transaction {
	return &Transaction{store: s}
}

// Add schedules s.Add(items).
func (t *Transaction) Add(items []record.Record, opts ...MutateOption[record.Record]) *Transaction {
	return t.push(func(ctx context.Context, onResult func(action.Report)) *stream.Stream[action.Report] {
		return reports(t.store.Add(ctx, items, withReport(opts, onResult)...))
	})
}

// Put schedules s.Put(items).
func (t *Transaction) Put(items []record.Record, opts ...MutateOption[record.Record]) *Transaction {
	return t.push(func(ctx context.Context, onResult func(action.Report)) *stream.Stream[action.Report] {
		return reports(t.store.Put(ctx, items, withReport(opts, onResult)...))
	})
}

// Patch schedules s.Patch(updates).
func (t *Transaction) Patch(updates []storage.PatchUpdate, opts ...MutateOption[storage.PatchUpdate]) *Transaction {
	return t.push(func(ctx context.Context, onResult func(action.Report)) *stream.Stream[action.Report] {
		return reports(t.store.Patch(ctx, updates, withReport(opts, onResult)...))
	})
}

// Delete schedules s.Delete(ids).
func (t *Transaction) Delete(ids []storage.ID, opts ...MutateOption[storage.ID]) *Transaction {
	return t.push(func(ctx context.Context, onResult func(action.Report)) *stream.Stream[action.Report] {
		return reports(t.store.Delete(ctx, ids, withReport(opts, onResult)...))
	})
}

// Len returns the number of pending mutations.
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Commit submits every pending mutation in order and returns their result
// streams merged into one. onResult, when non-nil, sees every result while
// it can still be resolved. The transaction is empty afterwards.
func (t *Transaction) Commit(ctx context.Context, onResult func(action.Report)) *stream.Stream[action.Report] {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	streams := make([]*stream.Stream[action.Report], 0, len(pending))
	for _, submit := range pending {
		streams = append(streams, submit(ctx, onResult))
	}
	return stream.Merge(streams...)
}

// Abort discards pending mutations and returns the untouched store.
func (t *Transaction) Abort() *Store {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	return t.store
}

func (t *Transaction) push(fn func(context.Context, func(action.Report)) *stream.Stream[action.Report]) *Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, fn)
	return t
}

func withReport[T any](opts []MutateOption[T], onResult func(action.Report)) []MutateOption[T] {
	if onResult == nil {
		return opts
	}
	return append(opts[:len(opts):len(opts)], OnResult(func(r *action.Result[T]) { onResult(r) }))
}

func reports[T any](a *action.Action[T]) *stream.Stream[action.Report] {
	return stream.Map(a.Results(), func(r *action.Result[T]) action.Report { return r })
}
