package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/store"
	"github.com/roach88/viewstore/internal/stream"
	"github.com/roach88/viewstore/internal/testutil"
)

// newSeeded creates a store over the three-record seed collection.
func newSeeded(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.New(append([]store.Option{store.WithData(testutil.Seed())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release(context.Background()) })
	return s
}

func wait[T any](t *testing.T, a *action.Action[T]) *action.Result[T] {
	t.Helper()
	res, err := a.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func fetchIDs(t *testing.T, s *store.Store) []string {
	t.Helper()
	items, err := s.Fetch(context.Background(), nil)
	require.NoError(t, err)
	return testutil.IDsOf(items)
}

// watcher records everything a stream delivers.
type watcher[T any] struct {
	mu     sync.Mutex
	values []T
	err    error
	done   bool
	sub    *stream.Subscription
}

func watch[T any](t *testing.T, s *stream.Stream[T]) *watcher[T] {
	t.Helper()
	w := &watcher[T]{}
	w.sub = s.Subscribe(stream.Observer[T]{
		Next: func(v T) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.values = append(w.values, v)
		},
		Error: func(err error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.err, w.done = err, true
		},
		Complete: func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.done = true
		},
	})
	t.Cleanup(w.sub.Unsubscribe)
	return w
}

func (w *watcher[T]) Values() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]T(nil), w.values...)
}

func (w *watcher[T]) Last() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.values[len(w.values)-1]
}

func (w *watcher[T]) Done() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done, w.err
}

// gatedStorage blocks the first Put until the gate opens.
type gatedStorage struct {
	storage.Storage
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGated(t *testing.T) *gatedStorage {
	t.Helper()
	mem, err := storage.NewMemory(storage.WithData(testutil.Seed()))
	require.NoError(t, err)
	return &gatedStorage{Storage: mem, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedStorage) Put(ctx context.Context, items []record.Record, opts storage.PutOptions) (storage.Result, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.Storage.Put(ctx, items, opts)
}

// failingAdd rejects every Add as a storage failure.
type failingAdd struct {
	storage.Storage
}

var errDiskFull = errors.New("disk full")

func (f failingAdd) Add(_ context.Context, items []record.Record, _ storage.PutOptions) (storage.Result, error) {
	return storage.Result{Type: storage.OpAdd, Failed: items, Current: make([]record.Record, len(items))}, errDiskFull
}
