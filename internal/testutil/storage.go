package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

// StorageFactory builds a fresh storage for one subtest.
type StorageFactory func(t *testing.T, opts ...storage.Option) (storage.Storage, error)

// Seed returns the three-record collection used across contract tests.
func Seed() []record.Record {
	return []record.Record{
		{"id": "1", "v": int64(1)},
		{"id": "2", "v": int64(2)},
		{"id": "3", "v": int64(3)},
	}
}

// IDsOf returns the ids of items under the default identity.
func IDsOf(items []record.Record) []string {
	return storage.IdentifyAll(storage.DefaultIdentity(), items...)
}

// RunStorageContract runs the behavior every Storage implementation must
// share.
func RunStorageContract(t *testing.T, factory StorageFactory) {
	ctx := context.Background()

	seeded := func(t *testing.T, opts ...storage.Option) storage.Storage {
		t.Helper()
		s, err := factory(t, append([]storage.Option{storage.WithData(Seed())}, opts...)...)
		require.NoError(t, err)
		return s
	}

	t.Run("DuplicateInitialData", func(t *testing.T) {
		_, err := factory(t, storage.WithData([]record.Record{{"id": "1"}, {"id": "1"}}))
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.CodeDuplicateIdentity))
	})

	t.Run("FetchPreservesOrder", func(t *testing.T) {
		s := seeded(t)
		all, err := s.Fetch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Seed(), all)
	})

	t.Run("FetchWithQuery", func(t *testing.T) {
		s := seeded(t)
		q := query.NewCompound(
			query.NewFilter(query.Gt(patch.NewPointer("v"), 1)),
			query.NewSort(query.ByField("v"), true),
		)
		out, err := s.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "2"}, IDsOf(out))
	})

	t.Run("GetOneSlotPerID", func(t *testing.T) {
		s := seeded(t)
		out, err := s.Get(ctx, "3", "missing", "1")
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, record.Record{"id": "3", "v": int64(3)}, out[0])
		assert.Nil(t, out[1])
		assert.Equal(t, record.Record{"id": "1", "v": int64(1)}, out[2])
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := seeded(t)
		out, err := s.Get(ctx, "1")
		require.NoError(t, err)
		out[0]["v"] = int64(99)

		again, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), again[0]["v"])
	})

	t.Run("AddAppends", func(t *testing.T) {
		s := seeded(t)
		res, err := s.Add(ctx, []record.Record{{"id": "4", "v": 4}}, storage.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, storage.OpAdd, res.Type)
		assert.Equal(t, []string{"4"}, res.SuccessfulIDs)
		assert.Equal(t, []record.Record{{"id": "4", "v": int64(4)}}, res.Successful)

		all, err := s.Fetch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4"}, IDsOf(all))
	})

	t.Run("AddExistingRejectsWholeBatch", func(t *testing.T) {
		s := seeded(t)
		batch := []record.Record{{"id": "5", "v": 5}, {"id": "2", "v": 20}}
		res, err := s.Add(ctx, batch, storage.PutOptions{})
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.CodeOverwriteRejected))

		var e *errs.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, []string{"2"}, e.IDs)

		assert.Equal(t, []string{"5", "2"}, IDsOf(res.Failed))
		require.Len(t, res.Current, 2)
		assert.Nil(t, res.Current[0])
		assert.Equal(t, record.Record{"id": "2", "v": int64(2)}, res.Current[1])

		all, err := s.Fetch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Seed(), all, "nothing partially applied")
	})

	t.Run("DuplicateIDInBatch", func(t *testing.T) {
		s := seeded(t)
		for _, opts := range []storage.PutOptions{{}, {AllowOverwrite: true}} {
			_, err := s.Add(ctx, []record.Record{{"id": "9", "v": 1}, {"id": 9, "v": 2}}, opts)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.CodeDuplicateIdentity))
		}
		_, err := s.Put(ctx, []record.Record{{"id": "1", "v": 10}, {"id": "1", "v": 11}}, storage.PutOptions{})
		assert.True(t, errs.Is(err, errs.CodeDuplicateIdentity))

		out, err := s.Get(ctx, "9", "1")
		require.NoError(t, err)
		assert.Nil(t, out[0])
		assert.Equal(t, int64(1), out[1]["v"])
	})

	t.Run("GeneratedIDSkipsExplicitLaterInBatch", func(t *testing.T) {
		s := seeded(t, storage.WithIDGenerator(storage.NewFixedIDs("g1", "g2")))
		res, err := s.Add(ctx, []record.Record{{"v": 7}, {"id": "g1", "v": 8}}, storage.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"g2", "g1"}, res.SuccessfulIDs)
	})

	t.Run("AddAllowOverwrite", func(t *testing.T) {
		s := seeded(t)
		_, err := s.Add(ctx, []record.Record{{"id": "2", "v": 20}}, storage.PutOptions{AllowOverwrite: true})
		require.NoError(t, err)

		out, err := s.Get(ctx, "2")
		require.NoError(t, err)
		assert.Equal(t, record.Record{"id": "2", "v": int64(20)}, out[0])
	})

	t.Run("PutInsertsAndReplaces", func(t *testing.T) {
		s := seeded(t)
		res, err := s.Put(ctx, []record.Record{{"id": "1", "v": 10}, {"id": "9", "v": 9}}, storage.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, storage.OpPut, res.Type)
		assert.Equal(t, []string{"1", "9"}, res.SuccessfulIDs)

		all, err := s.Fetch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "9"}, IDsOf(all))
		assert.Equal(t, int64(10), all[0]["v"])
	})

	t.Run("PutRejectOverwrite", func(t *testing.T) {
		s := seeded(t)
		_, err := s.Put(ctx, []record.Record{{"id": "3", "v": 30}}, storage.PutOptions{RejectOverwrite: true})
		assert.True(t, errs.Is(err, errs.CodeOverwriteRejected))
	})

	t.Run("DeleteRenumbers", func(t *testing.T) {
		s := seeded(t)
		res, err := s.Delete(ctx, []storage.ID{"2", "missing"})
		require.NoError(t, err)
		assert.Equal(t, storage.OpDelete, res.Type)
		assert.Equal(t, []string{"2"}, res.SuccessfulIDs)

		_, err = s.Add(ctx, []record.Record{{"id": "4", "v": 4}}, storage.PutOptions{})
		require.NoError(t, err)
		_, err = s.Put(ctx, []record.Record{{"id": "3", "v": 33}}, storage.PutOptions{})
		require.NoError(t, err)

		all, err := s.Fetch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []record.Record{
			{"id": "1", "v": int64(1)},
			{"id": "3", "v": int64(33)},
			{"id": "4", "v": int64(4)},
		}, all)

		upd, _, err := s.IsUpdate(ctx, record.Record{"id": "2"})
		require.NoError(t, err)
		assert.False(t, upd)
	})

	t.Run("PatchApplies", func(t *testing.T) {
		s := seeded(t)
		res, err := s.Patch(ctx, []storage.PatchUpdate{
			{ID: "3", Patch: patch.New(patch.Replace(patch.NewPointer("v"), 1))},
			{ID: "1", Patch: patch.New(patch.Add(patch.NewPointer("tag"), "x"))},
		})
		require.NoError(t, err)
		assert.Equal(t, storage.OpPatch, res.Type)
		assert.Equal(t, []string{"3", "1"}, res.SuccessfulIDs)
		assert.Equal(t, record.Record{"id": "3", "v": int64(1)}, res.Successful[0])

		out, err := s.Get(ctx, "1", "3")
		require.NoError(t, err)
		assert.Equal(t, "x", out[0]["tag"])
		assert.Equal(t, int64(1), out[1]["v"])
	})

	t.Run("PatchMissingFailsBatch", func(t *testing.T) {
		s := seeded(t)
		_, err := s.Patch(ctx, []storage.PatchUpdate{
			{ID: "1", Patch: patch.New(patch.Replace(patch.NewPointer("v"), 100))},
			{ID: "nope", Patch: patch.New(patch.Replace(patch.NewPointer("v"), 0))},
		})
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.CodeNotFound))

		out, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), out[0]["v"])
	})

	t.Run("PatchCannotChangeIdentity", func(t *testing.T) {
		s := seeded(t)
		_, err := s.Patch(ctx, []storage.PatchUpdate{
			{ID: "1", Patch: patch.New(patch.Replace(patch.NewPointer("id"), "7"))},
		})
		assert.Error(t, err)
	})

	t.Run("GeneratedIDs", func(t *testing.T) {
		s := seeded(t, storage.WithIDGenerator(storage.NewFixedIDs("2", "g1", "g2")))
		res, err := s.Add(ctx, []record.Record{{"v": 7}}, storage.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"g1"}, res.SuccessfulIDs)
		assert.Equal(t, record.Record{"id": "g1", "v": int64(7)}, res.Successful[0])

		id, err := s.CreateID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "g2", id)
	})

	t.Run("CustomIdentityField", func(t *testing.T) {
		s, err := factory(t,
			storage.WithIdentity(storage.IdentityField("key")),
			storage.WithData([]record.Record{{"key": 1, "v": "a"}}),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", ""}, s.Identify(record.Record{"key": 1}, record.Record{"id": "1"}))

		upd, id, err := s.IsUpdate(ctx, record.Record{"key": "1"})
		require.NoError(t, err)
		assert.True(t, upd)
		assert.Equal(t, "1", id)
	})

	t.Run("FuncIdentityWithoutIDFails", func(t *testing.T) {
		ident := storage.IdentityFunc(func(r record.Record) storage.ID {
			s, _ := r["name"].(string)
			return s
		})
		s, err := factory(t, storage.WithIdentity(ident))
		require.NoError(t, err)
		_, err = s.Add(ctx, []record.Record{{"v": 1}}, storage.PutOptions{})
		assert.ErrorIs(t, err, storage.ErrNoIdentity)

		_, err = s.Add(ctx, []record.Record{{"name": "ann"}}, storage.PutOptions{})
		require.NoError(t, err)
		out, err := s.Get(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, record.Record{"name": "ann"}, out[0])
	})
}
