package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

// panicCode runs fn and returns the code of the *errs.Error it panicked
// with, or "" if it did not panic.
func panicCode(t *testing.T, fn func()) (code errs.Code) {
	t.Helper()
	defer func() {
		if p := recover(); p != nil {
			e, ok := p.(*errs.Error)
			require.True(t, ok, "panic value %v is not *errs.Error", p)
			code = e.Code
		}
	}()
	fn()
	return ""
}

// conflicting returns an update function that fails every id in failing on
// the first round and accepts resubmitted data.
func conflicting(ok []string, failing []string, calls *int) func() Update[string] {
	var retry func(data []string) Update[string]
	retry = func(data []string) Update[string] {
		*calls++
		return Update[string]{Successful: data}
	}
	return func() Update[string] {
		*calls++
		cur := make([]record.Record, len(failing))
		for i, id := range failing {
			cur[i] = record.Record{"id": id, "v": int64(i)}
		}
		return Update[string]{Successful: ok, Failed: failing, Current: cur, Retry: retry}
	}
}

func collect[T any](a *Action[T]) *[]*Result[T] {
	var out []*Result[T]
	a.OnResult(func(r *Result[T]) { out = append(out, r) })
	return &out
}

func TestAction_Success(t *testing.T) {
	a := New(storage.OpAdd, []string{"a"}, 3, func() Update[string] {
		return Update[string]{Successful: []string{"a"}, Items: []record.Record{{"id": "a"}}}
	})
	assert.Equal(t, int64(3), a.TargetedVersion)
	results := collect(a)
	completed := false
	a.Subscribe(stream.Observer[*Result[string]]{Complete: func() { completed = true }})

	a.Do(nil)

	require.Len(t, *results, 1)
	r := (*results)[0]
	assert.False(t, r.WithConflicts)
	assert.Equal(t, []string{"a"}, r.Successful)
	assert.Equal(t, []record.Record{{"id": "a"}}, r.Items)
	assert.True(t, completed)

	final, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, r, final)
	assert.True(t, a.Executed())
}

func TestAction_RetryAllAccumulates(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting([]string{"a"}, []string{"b", "c"}, &calls))
	results := collect(a)
	a.OnResult(func(r *Result[string]) {
		if r.WithConflicts {
			r.RetryAll()
		}
	})

	a.Do(nil)

	assert.Equal(t, 2, calls)
	require.Len(t, *results, 2)
	first, second := (*results)[0], (*results)[1]
	assert.True(t, first.WithConflicts)
	assert.Equal(t, []string{"b", "c"}, first.Failed)
	assert.True(t, first.Resolved())
	assert.Equal(t, 2, second.Round)
	assert.False(t, second.WithConflicts)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, second.Successful)
}

func TestAction_FilterSelectsSubset(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting(nil, []string{"b", "c"}, &calls))
	var seenCurrent []record.Record
	a.OnResult(func(r *Result[string]) {
		if !r.WithConflicts {
			return
		}
		r.Filter(func(id string, current record.Record) bool {
			seenCurrent = append(seenCurrent, current)
			return id == "c"
		})
	})

	a.Do(nil)

	final, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, final.Successful)
	assert.Equal(t, []record.Record{{"id": "b", "v": int64(0)}, {"id": "c", "v": int64(1)}}, seenCurrent)
}

func TestAction_SecondResolutionIsNoop(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting(nil, []string{"b", "c"}, &calls))
	a.OnResult(func(r *Result[string]) {
		if r.WithConflicts {
			r.RetryAll()
			r.Filter(func(string, record.Record) bool { return false })
		}
	})
	a.Do(nil)

	final, _ := a.Wait(context.Background())
	assert.Equal(t, []string{"b", "c"}, final.Successful)
}

func TestAction_FilterNothingEndsAction(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting([]string{"a"}, []string{"b"}, &calls))
	a.OnResult(func(r *Result[string]) {
		if r.WithConflicts {
			r.Filter(func(string, record.Record) bool { return false })
		}
	})
	a.Do(Aggressive(5).NewSession(nil))

	assert.Equal(t, 1, calls, "consumed token blocks the policy")
	final, _ := a.Wait(context.Background())
	assert.True(t, final.WithConflicts)
	assert.Equal(t, []string{"b"}, final.Failed)
}

func TestAction_ResolveAfterNotificationPanics(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting(nil, []string{"b"}, &calls))
	var held *Result[string]
	a.OnResult(func(r *Result[string]) { held = r })
	a.Do(nil)

	require.NotNil(t, held)
	assert.Equal(t, errs.CodeInvalidRetry, panicCode(t, held.RetryAll))
	assert.Equal(t, 1, calls)
}

func TestAction_ResolveConflictFreePanics(t *testing.T) {
	a := New(storage.OpAdd, nil, 0, func() Update[string] {
		return Update[string]{Successful: []string{"a"}}
	})
	var code errs.Code
	a.OnResult(func(r *Result[string]) {
		code = panicCode(t, r.RetryAll)
	})
	a.Do(nil)
	assert.Equal(t, errs.CodeInvalidRetry, code)
}

func TestAction_DoubleExecutionPanics(t *testing.T) {
	a := New(storage.OpDelete, nil, 0, func() Update[string] { return Update[string]{} })
	a.Do(nil)
	assert.Equal(t, errs.CodeDoubleExecution, panicCode(t, func() { a.Do(nil) }))
}

func TestAction_LateSubscriberGetsReplayWithExpiredTokens(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting(nil, []string{"b"}, &calls))
	a.Do(nil)

	values, err, done := stream.Collect(a.Results())
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, values, 1)
	assert.True(t, values[0].WithConflicts)
	assert.Equal(t, errs.CodeInvalidRetry, panicCode(t, values[0].RetryAll))
}

func TestAction_ErrorResult(t *testing.T) {
	boom := errs.OverwriteRejected("a")
	a := New(storage.OpAdd, []string{"a"}, 0, func() Update[string] {
		return Update[string]{Failed: []string{"a"}, Current: []record.Record{{"id": "a"}}, Err: boom}
	})
	a.Do(Aggressive(3).NewSession(nil))

	final, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, final.WithConflicts)
	assert.True(t, errs.Is(final.Err, errs.CodeOverwriteRejected))
	assert.Equal(t, boom, final.Failure())
}

func TestAction_WaitHonorsContext(t *testing.T) {
	a := New(storage.OpAdd, nil, 0, func() Update[string] { return Update[string]{} })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReport(t *testing.T) {
	calls := 0
	a := New(storage.OpPatch, nil, 0, conflicting(nil, []string{"x", "y"}, &calls))
	var rep Report
	a.OnResult(func(r *Result[string]) {
		rep = r
		assert.Equal(t, storage.OpPatch, rep.Op())
		assert.True(t, rep.Conflicted())
		assert.Equal(t, 2, rep.FailedCount())
		assert.False(t, rep.Resolved())
		rep.RetryAll()
		assert.True(t, rep.Resolved())
	})
	a.Do(nil)
	assert.Equal(t, 2, calls)
}
