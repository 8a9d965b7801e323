package action

import (
	"slices"
	"sync"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

// Update is what an update function reports for one round.
type Update[T any] struct {
	// Successful holds the data that was applied this round.
	Successful []T

	// Items holds the stored records produced by this round (the removed
	// records for deletes).
	Items []record.Record

	// Failed holds the conflicting data; Current is aligned with it.
	Failed  []T
	Current []record.Record

	// Retry resubmits a subset of Failed.
	Retry func(data []T) Update[T]

	// Err aborts the action. Failed/Current may describe the batch.
	Err error
}

// Result is one emission of an action's result stream.
type Result[T any] struct {
	Type  storage.OpType
	Round int

	// Successful and Items accumulate across rounds.
	Successful []T
	Items      []record.Record

	Failed  []T
	Current []record.Record

	WithConflicts bool
	Err           error

	token *token[T]
}

// RetryAll resubmits every failed datum.
func (r *Result[T]) RetryAll() {
	r.resolve(func() []T { return slices.Clone(r.Failed) })
}

// Filter resubmits the failed data keep accepts, given each datum and its
// current stored value.
func (r *Result[T]) Filter(keep func(datum T, current record.Record) bool) {
	r.resolve(func() []T {
		var chosen []T
		for i, d := range r.Failed {
			var cur record.Record
			if i < len(r.Current) {
				cur = r.Current[i]
			}
			if keep(d, cur) {
				chosen = append(chosen, d)
			}
		}
		return chosen
	})
}

func (r *Result[T]) resolve(pick func() []T) {
	if r.token == nil {
		panic(errs.New(errs.CodeInvalidRetry, "result has no conflicts to resolve"))
	}
	r.token.resolve(pick)
}

// Resolved reports whether a resolution was recorded for this result.
func (r *Result[T]) Resolved() bool {
	return r.token != nil && r.token.isUsed()
}

// Report methods.

func (r *Result[T]) Op() storage.OpType { return r.Type }

func (r *Result[T]) Conflicted() bool { return r.WithConflicts }

func (r *Result[T]) Failure() error { return r.Err }

func (r *Result[T]) FailedCount() int { return len(r.Failed) }

// Report is the type-erased view of a Result used by policies and
// transactions.
type Report interface {
	Op() storage.OpType
	Conflicted() bool
	Resolved() bool
	RetryAll()
	Failure() error
	FailedCount() int
}

var _ Report = (*Result[record.Record])(nil)

type token[T any] struct {
	mu      sync.Mutex
	used    bool
	expired bool
	chosen  []T
}

func (t *token[T]) resolve(pick func() []T) {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		panic(errs.New(errs.CodeInvalidRetry, "conflict resolved after its notification returned"))
	}
	if t.used {
		t.mu.Unlock()
		return
	}
	t.used = true
	t.mu.Unlock()

	chosen := pick()

	t.mu.Lock()
	t.chosen = chosen
	t.mu.Unlock()
}

func (t *token[T]) isUsed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// expire closes the token and returns the chosen data.
func (t *token[T]) expire() []T {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expired = true
	return t.chosen
}
