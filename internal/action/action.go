package action

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// Action is a deferred, single-execution mutation.
type Action[T any] struct {
	Type            storage.OpType
	Targeted        []T
	TargetedVersion int64

	update func() Update[T]

	mu       sync.Mutex
	executed bool
	final    *Result[T]
	results  *stream.Subject[*Result[T]]
	done     chan struct{}
}

// New creates an action. targetedVersion is the store version the action
// was issued against.
func New[T any](typ storage.OpType, targeted []T, targetedVersion int64, update func() Update[T]) *Action[T] {
	return &Action[T]{
		Type:            typ,
		Targeted:        targeted,
		TargetedVersion: targetedVersion,
		update:          update,
		results:         stream.NewReplaySubject[*Result[T]](),
		done:            make(chan struct{}),
	}
}

// Results returns the result stream. Late subscribers receive the replayed
// history, whose resolution tokens have already expired.
func (a *Action[T]) Results() *stream.Stream[*Result[T]] {
	return a.results.Stream()
}

// Subscribe attaches an observer to the result stream.
func (a *Action[T]) Subscribe(obs stream.Observer[*Result[T]]) *stream.Subscription {
	return a.results.Subscribe(obs)
}

// OnResult registers fn for every emitted result. Register before the
// action runs to be able to resolve conflicts.
func (a *Action[T]) OnResult(fn func(*Result[T])) *stream.Subscription {
	return a.results.Subscribe(stream.Observer[*Result[T]]{Next: fn})
}

// Executed reports whether Do has been called.
func (a *Action[T]) Executed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executed
}

// Done is closed once the result stream completed.
func (a *Action[T]) Done() <-chan struct{} { return a.done }

// Wait blocks until the action completed and returns its final result.
func (a *Action[T]) Wait(ctx context.Context) (*Result[T], error) {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.final, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute runs the action with a session from p logging to l. It
// implements Runnable.
func (a *Action[T]) Execute(p Policy, m *Metrics, l *slog.Logger) {
	m.executed(a.Type)
	if p == nil {
		p = Passive()
	}
	a.Do(metered(p.NewSession(l), m, a.Type))
}

// Do runs every round of the action synchronously. A nil session behaves
// passively. Calling Do twice panics with a DOUBLE_EXECUTION *errs.Error.
func (a *Action[T]) Do(s Session) {
	a.mu.Lock()
	if a.executed {
		a.mu.Unlock()
		panic(errs.New(errs.CodeDoubleExecution, "action already executed"))
	}
	a.executed = true
	a.mu.Unlock()

	if s == nil {
		s = passiveSession{}
	}

	var (
		successful []T
		items      []record.Record
	)
	upd := a.update()
	for round := 1; ; round++ {
		successful = append(successful, upd.Successful...)
		items = append(items, upd.Items...)

		res := &Result[T]{
			Type:       a.Type,
			Round:      round,
			Successful: slices.Clone(successful),
			Items:      slices.Clone(items),
			Failed:     upd.Failed,
			Current:    upd.Current,
			Err:        upd.Err,
		}
		if upd.Err == nil && len(upd.Failed) > 0 {
			res.WithConflicts = true
			res.token = &token[T]{}
		}

		a.results.Next(res)
		s.Handle(res)

		chosen := res.token.expire()
		if len(chosen) == 0 || upd.Retry == nil {
			a.finish(res)
			return
		}
		upd = upd.Retry(chosen)
	}
}

func (a *Action[T]) finish(res *Result[T]) {
	a.mu.Lock()
	a.final = res
	a.mu.Unlock()
	close(a.done)
	a.results.Complete()
}
