package action

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

// alwaysConflicting never lets "b" through.
func alwaysConflicting(calls *int) func() Update[string] {
	var round func([]string) Update[string]
	round = func(data []string) Update[string] {
		*calls++
		return Update[string]{
			Failed:  data,
			Current: make([]record.Record, len(data)),
			Retry:   round,
		}
	}
	return func() Update[string] { return round([]string{"b"}) }
}

func TestPassive_DoesNotRetry(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, alwaysConflicting(&calls))
	a.Do(Passive().NewSession(nil))
	assert.Equal(t, 1, calls)

	final, _ := a.Wait(context.Background())
	assert.True(t, final.WithConflicts)
	assert.False(t, final.Resolved())
}

func TestAggressive_RetriesUpToBudget(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		retries   int
	}{
		{"explicit", 3, 3},
		{"default", 0, DefaultMaxRetries},
		{"negative", -1, DefaultMaxRetries},
		{"capped", 1000, MaxRetriesCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Aggressive(tt.requested)
			assert.Equal(t, tt.retries, MaxRetries(p))

			calls := 0
			a := New(storage.OpPut, nil, 0, alwaysConflicting(&calls))
			a.Do(p.NewSession(nil))

			assert.Equal(t, tt.retries+1, calls)
			final, _ := a.Wait(context.Background())
			assert.True(t, final.WithConflicts, "final conflict state is surfaced")
			assert.Equal(t, tt.retries+1, final.Round)
		})
	}
}

func TestAggressive_GiveUpLogsToSessionLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	calls := 0
	a := New(storage.OpPut, nil, 0, alwaysConflicting(&calls))
	a.Do(Aggressive(2).NewSession(logger))

	assert.Equal(t, 3, calls)
	assert.Contains(t, buf.String(), "aggressive policy gave up")
	assert.Contains(t, buf.String(), "max_retries=2")
}

func TestAggressive_SessionsAreIndependent(t *testing.T) {
	p := Aggressive(2)
	for i := 0; i < 2; i++ {
		calls := 0
		a := New(storage.OpPut, nil, 0, alwaysConflicting(&calls))
		a.Do(p.NewSession(nil))
		assert.Equal(t, 3, calls)
	}
}

func TestAggressive_StopsWhenConflictClears(t *testing.T) {
	calls := 0
	a := New(storage.OpPut, nil, 0, conflicting([]string{"a"}, []string{"b"}, &calls))
	a.Do(Aggressive(10).NewSession(nil))
	assert.Equal(t, 2, calls)

	final, _ := a.Wait(context.Background())
	assert.False(t, final.WithConflicts)
	assert.ElementsMatch(t, []string{"a", "b"}, final.Successful)
}

func TestPolicyNames(t *testing.T) {
	assert.Equal(t, "passive", Passive().Name())
	assert.Equal(t, "aggressive", Aggressive(1).Name())
	assert.Equal(t, 0, MaxRetries(Passive()))
}
