package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/stream"
)

func TestTransaction_CommitMergesResults(t *testing.T) {
	s := newSeeded(t)
	tx := s.Transaction().
		Add([]record.Record{{"id": "4"}}).
		Delete([]storage.ID{"1"})
	assert.Equal(t, 2, tx.Len())
	assert.Equal(t, []string{"1", "2", "3"}, fetchIDs(t, s), "nothing runs before commit")

	var seen []storage.OpType
	reports, err, done := stream.Collect(tx.Commit(ctx, func(r action.Report) { seen = append(seen, r.Op()) }))
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, reports, 2)
	assert.Equal(t, storage.OpAdd, reports[0].Op())
	assert.Equal(t, storage.OpDelete, reports[1].Op())
	assert.Equal(t, []storage.OpType{storage.OpAdd, storage.OpDelete}, seen)

	assert.Equal(t, []string{"2", "3", "4"}, fetchIDs(t, s))
	assert.Equal(t, 0, tx.Len())
}

func TestTransaction_ReportsFailures(t *testing.T) {
	s := newSeeded(t)
	reports, _, _ := stream.Collect(s.Transaction().Add([]record.Record{{"id": "1"}}).Commit(ctx, nil))

	require.Len(t, reports, 1)
	assert.Error(t, reports[0].Failure())
	assert.Equal(t, 1, reports[0].FailedCount())
}

func TestTransaction_Abort(t *testing.T) {
	s := newSeeded(t)
	tx := s.Transaction().Put([]record.Record{{"id": "1", "v": 100}})
	assert.Same(t, s, tx.Abort())
	assert.Equal(t, 0, tx.Len())

	reports, _, done := stream.Collect(tx.Commit(ctx, nil))
	assert.Empty(t, reports)
	assert.True(t, done)

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0]["v"])
	assert.Equal(t, int64(0), s.Version())
}
