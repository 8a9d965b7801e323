package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/sqlstorage"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/store"
	"github.com/roach88/viewstore/internal/testutil"
)

var ctx = context.Background()

func TestNew_DuplicateIdentity(t *testing.T) {
	_, err := store.New(store.WithData([]record.Record{{"id": "1"}, {"id": "1"}}))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeDuplicateIdentity))
}

func TestNew_CustomIdentityAndGenerator(t *testing.T) {
	s, err := store.New(
		store.WithIdentity(storage.IdentityField("key")),
		store.WithIDGenerator(storage.NewFixedIDs("k1", "k2")),
		store.WithData([]record.Record{{"v": 1}}),
	)
	require.NoError(t, err)

	items, err := s.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "k1", items[0]["key"])

	id, err := s.CreateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", id)
	assert.Equal(t, []string{"x"}, s.Identify(record.Record{"key": "x"}))
}

func TestAdd(t *testing.T) {
	s := newSeeded(t)
	res := wait(t, s.Add(ctx, []record.Record{{"id": "4", "v": 4}}))

	require.NoError(t, res.Err)
	assert.False(t, res.WithConflicts)
	assert.Len(t, res.Successful, 1)
	assert.Equal(t, int64(1), s.Version())
	assert.Equal(t, []string{"1", "2", "3", "4"}, fetchIDs(t, s))
}

func TestAdd_ExistingIDRejectsBatch(t *testing.T) {
	s := newSeeded(t)
	res := wait(t, s.Add(ctx, []record.Record{{"id": "5"}, {"id": "1", "v": 9}}))

	require.Error(t, res.Err)
	assert.True(t, errs.Is(res.Err, errs.CodeOverwriteRejected))
	assert.Equal(t, int64(0), s.Version())
	assert.Equal(t, []string{"1", "2", "3"}, fetchIDs(t, s))
	require.Len(t, res.Current, 2)
	assert.Nil(t, res.Current[0])
	assert.Equal(t, int64(1), res.Current[1]["v"])
}

func TestAdd_AllowOverwrite(t *testing.T) {
	s := newSeeded(t)
	res := wait(t, s.Add(ctx, []record.Record{{"id": "1", "v": 9}}, store.AllowOverwrite()))
	require.NoError(t, res.Err)

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got[0]["v"])
}

func TestPut_MergesPartitionsInInputOrder(t *testing.T) {
	for _, live := range []bool{false, true} {
		t.Run(map[bool]string{false: "storage", true: "live"}[live], func(t *testing.T) {
			s := newSeeded(t, store.WithTracking(live))
			res := wait(t, s.Put(ctx, []record.Record{
				{"id": "9", "v": 90},
				{"id": "1", "v": 10},
				{"id": "8", "v": 80},
			}))

			require.NoError(t, res.Err)
			assert.Equal(t, []string{"9", "1", "8"}, s.Identify(res.Items...))
			assert.Equal(t, []string{"1", "2", "3", "9", "8"}, fetchIDs(t, s))
			assert.Equal(t, int64(1), s.Version(), "one round, one version")
		})
	}
}

func TestPut_FailedSideReportsOnlyItsItems(t *testing.T) {
	mem, err := storage.NewMemory(storage.WithData(testutil.Seed()))
	require.NoError(t, err)
	s, err := store.New(store.WithStorage(failingAdd{mem}))
	require.NoError(t, err)

	res := wait(t, s.Put(ctx, []record.Record{
		{"id": "9", "v": 90},
		{"id": "1", "v": 10},
		{"id": "8", "v": 80},
		{"id": "2", "v": 20},
	}))

	require.ErrorIs(t, res.Err, errDiskFull)
	assert.Equal(t, []string{"9", "8"}, s.Identify(res.Failed...), "input order")
	assert.Len(t, res.Current, 2)
	assert.Equal(t, []string{"1", "2"}, s.Identify(res.Items...))
	assert.Equal(t, int64(1), s.Version(), "the written side still commits")

	got, err := s.Get(ctx, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got[0]["v"])
	assert.Equal(t, int64(20), got[1]["v"])
}

func TestAdd_DuplicateIDInBatch(t *testing.T) {
	s := newSeeded(t)
	res := wait(t, s.Add(ctx, []record.Record{{"id": "9", "v": 1}, {"id": "9", "v": 2}}))

	require.Error(t, res.Err)
	assert.True(t, errs.Is(res.Err, errs.CodeDuplicateIdentity))
	assert.Equal(t, int64(0), s.Version())
	assert.Equal(t, []string{"1", "2", "3"}, fetchIDs(t, s))
}

func TestPatch(t *testing.T) {
	s := newSeeded(t)
	res := wait(t, s.Patch(ctx, []storage.PatchUpdate{{
		ID:    "2",
		Patch: patch.New(patch.Replace(patch.MustParsePointer("/v"), 20)),
	}}))
	require.NoError(t, res.Err)

	got, err := s.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got[0]["v"])

	res = wait(t, s.Patch(ctx, []storage.PatchUpdate{{ID: "nope", Patch: patch.New()}}))
	assert.True(t, errs.Is(res.Err, errs.CodeNotFound))
	assert.Equal(t, int64(1), s.Version())
}

func TestDelete_ThenAddCompacts(t *testing.T) {
	s := newSeeded(t)
	events := watch(t, s.Observe())

	res := wait(t, s.Delete(ctx, []storage.ID{"2", "missing"}))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1", "3"}, fetchIDs(t, s))

	wait(t, s.Add(ctx, []record.Record{{"id": "5"}}))
	assert.Equal(t, []string{"1", "3", "5"}, fetchIDs(t, s))

	got := events.Values()
	require.Len(t, got, 3)
	assert.True(t, got[0].Synthetic)
	assert.Equal(t, storage.OpDelete, got[1].Type)
	assert.Equal(t, []string{"2"}, got[1].IDs)
	assert.Equal(t, storage.OpAdd, got[2].Type)
}

func TestDelete_NothingRemovedKeepsVersion(t *testing.T) {
	s := newSeeded(t)
	wait(t, s.Delete(ctx, []storage.ID{"missing"}))
	assert.Equal(t, int64(0), s.Version())
}

func TestItemMap_StampsMutatedIDs(t *testing.T) {
	s := newSeeded(t, store.WithTracking(true))
	wait(t, s.Put(ctx, []record.Record{{"id": "1", "v": 100}}))
	wait(t, s.Add(ctx, []record.Record{{"id": "4"}}))

	e1, ok := s.Entry("1")
	require.True(t, ok)
	assert.Equal(t, int64(1), e1.UpdatedVersion)
	assert.Equal(t, int64(100), e1.Item["v"])

	e2, _ := s.Entry("2")
	assert.Equal(t, int64(0), e2.UpdatedVersion)

	e4, _ := s.Entry("4")
	assert.Equal(t, int64(2), e4.UpdatedVersion)
	assert.Equal(t, 3, e4.Index)
}

func TestBuildItemMap_Duplicate(t *testing.T) {
	_, err := store.BuildItemMap(storage.DefaultIdentity(), []record.Record{{"id": "a"}, {"id": "a"}}, nil)
	assert.True(t, errs.Is(err, errs.CodeDuplicateIdentity))
}

func TestDerived_ReadsThroughAndTracksStaleness(t *testing.T) {
	s := newSeeded(t)
	d := s.Filter(query.Gt(patch.MustParsePointer("/v"), 1)).Sort(query.ByField("v"), true)

	assert.True(t, d.Derived())
	assert.Equal(t, 2, d.ViewQuery().Len())
	assert.False(t, d.Stale())

	wait(t, d.Add(ctx, []record.Record{{"id": "4", "v": 4}}))
	assert.Equal(t, int64(1), d.Version())
	assert.True(t, d.Stale())

	assert.Equal(t, []string{"4", "3", "2"}, fetchIDs(t, d))
	assert.False(t, d.Stale())
	assert.Equal(t, []string{"1", "2", "3", "4"}, fetchIDs(t, s))
}

func TestDerived_FetchComposesQuery(t *testing.T) {
	s := newSeeded(t)
	d := s.Filter(query.Gt(patch.MustParsePointer("/v"), 1))

	items, err := d.Fetch(ctx, query.NewRange(0, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, d.Identify(items...))
}

func TestRelease_RejectsLaterMutations(t *testing.T) {
	s := newSeeded(t)
	events := watch(t, s.Observe())
	require.NoError(t, s.Release(ctx))

	done, err := events.Done()
	assert.True(t, done)
	assert.NoError(t, err)

	res := wait(t, s.Add(ctx, []record.Record{{"id": "4"}}))
	assert.ErrorIs(t, res.Err, action.ErrReleased)
	assert.Equal(t, []string{"1", "2", "3"}, fetchIDs(t, s))
}

func TestStore_OverSQLite(t *testing.T) {
	db, err := sqlstorage.Open(sqlstorage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.New(
		store.WithStorage(db),
		store.WithData([]record.Record{{"id": "1", "v": 1}, {"id": "2", "v": 2}}),
		store.WithMediateDataConflicts(true),
	)
	require.NoError(t, err)

	res := wait(t, s.Put(ctx, []record.Record{{"id": "2", "v": 20}, {"id": "3", "v": 3}}))
	require.NoError(t, res.Err)

	d := s.Filter(query.Gt(patch.MustParsePointer("/v"), 2))
	assert.Equal(t, []string{"2", "3"}, fetchIDs(t, d))

	e, ok := s.Entry("3")
	require.True(t, ok)
	assert.Equal(t, int64(1), e.UpdatedVersion)
}
