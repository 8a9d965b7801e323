package storage_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/testutil"
)

func TestMemory_Contract(t *testing.T) {
	testutil.RunStorageContract(t, func(t *testing.T, opts ...storage.Option) (storage.Storage, error) {
		return storage.NewMemory(opts...)
	})
}

func TestMemory_InitialDataWithoutIDs(t *testing.T) {
	m, err := storage.NewMemory(storage.WithData([]record.Record{
		{"v": 1},
		{"id": "1", "v": 2},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	all, err := m.Fetch(context.Background(), nil)
	require.NoError(t, err)
	// "1" is claimed explicitly, so the generated id skips it.
	assert.Equal(t, []string{"2", "1"}, testutil.IDsOf(all))
}

func TestMemory_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m, err := storage.NewMemory()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Add(ctx, []record.Record{{"v": 1}}, storage.PutOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len())
}

func TestMemory_CanceledContext(t *testing.T) {
	m, err := storage.NewMemory()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Fetch(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCounterIDs(t *testing.T) {
	g := storage.NewCounterIDs()
	assert.Equal(t, "1", g.Generate())
	assert.Equal(t, "2", g.Generate())
}

func TestUUIDv7IDs(t *testing.T) {
	var g storage.UUIDv7IDs
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestFixedIDs_Exhausted(t *testing.T) {
	g := storage.NewFixedIDs("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestIdentityField(t *testing.T) {
	id := storage.IdentityField("")
	name, ok := id.Field()
	assert.True(t, ok)
	assert.Equal(t, "id", name)

	got, ok := id.Identify(record.Record{"id": 3.0})
	assert.True(t, ok)
	assert.Equal(t, "3", got)

	_, ok = id.Identify(record.Record{"id": map[string]any{}})
	assert.False(t, ok)
}
