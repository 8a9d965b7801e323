package storage

import (
	"context"
	"sync"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
)

// Option configures a storage implementation.
type Option func(*Config)

// Config holds options shared by storage implementations.
type Config struct {
	Identity Identity
	IDs      IDGenerator
	Data     []record.Record
}

// WithIdentity sets the identity strategy. Default: IdentityField("id").
func WithIdentity(identity Identity) Option {
	return func(c *Config) { c.Identity = identity }
}

// WithIDGenerator sets the id generator. Default: CounterIDs.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Config) { c.IDs = gen }
}

// WithData sets the initial contents.
func WithData(items []record.Record) Option {
	return func(c *Config) { c.Data = items }
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	c := Config{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Identity == nil {
		c.Identity = DefaultIdentity()
	}
	if c.IDs == nil {
		c.IDs = NewCounterIDs()
	}
	return c
}

// Memory is an in-memory Storage.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	identity Identity
	ids      IDGenerator
	items    []record.Record
	index    map[ID]int
}

var _ Storage = (*Memory)(nil)

// NewMemory creates an in-memory storage. Initial data with duplicate ids
// fails with DUPLICATE_IDENTITY.
func NewMemory(opts ...Option) (*Memory, error) {
	c := NewConfig(opts...)
	m := &Memory{
		identity: c.Identity,
		ids:      c.IDs,
		index:    map[ID]int{},
	}
	if len(c.Data) == 0 {
		return m, nil
	}
	explicit := map[ID]bool{}
	for _, item := range c.Data {
		if id, ok := m.identity.Identify(item); ok {
			explicit[id] = true
		}
	}
	b, err := PrepareBatch(context.Background(), m.identity, m.ids, func(id ID) bool { return explicit[id] }, c.Data)
	if err != nil {
		return nil, err
	}
	for i, id := range b.IDs {
		if _, dup := m.index[id]; dup {
			return nil, errs.DuplicateIdentity(id)
		}
		m.index[id] = i
	}
	m.items = b.Items
	return m, nil
}

// Identity returns the configured identity strategy.
func (m *Memory) Identity() Identity { return m.identity }

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Identify(items ...record.Record) []ID {
	return IdentifyAll(m.identity, items...)
}

func (m *Memory) CreateID(ctx context.Context) (ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NextID(ctx, m.ids, m.hasLocked)
}

func (m *Memory) hasLocked(id ID) bool {
	_, ok := m.index[id]
	return ok
}

func (m *Memory) Fetch(ctx context.Context, q query.Query) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := CloneAll(m.items)
	m.mu.RUnlock()
	if q == nil {
		return all, nil
	}
	return q.Apply(all), nil
}

func (m *Memory) Get(ctx context.Context, ids ...ID) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]record.Record, len(ids))
	for i, id := range ids {
		if pos, ok := m.index[id]; ok {
			out[i] = m.items[pos].Clone()
		}
	}
	return out, nil
}

func (m *Memory) Put(ctx context.Context, items []record.Record, opts PutOptions) (Result, error) {
	return m.write(ctx, OpPut, items, opts.RejectOverwrite)
}

func (m *Memory) Add(ctx context.Context, items []record.Record, opts PutOptions) (Result, error) {
	return m.write(ctx, OpAdd, items, !opts.AllowOverwrite)
}

func (m *Memory) write(ctx context.Context, op OpType, items []record.Record, reject bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Type: op}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := PrepareBatch(ctx, m.identity, m.ids, m.hasLocked, items)
	if err != nil {
		return Result{Type: op}, err
	}

	if reject {
		var existing []ID
		current := make([]record.Record, len(b.IDs))
		for i, id := range b.IDs {
			if pos, ok := m.index[id]; ok {
				existing = append(existing, id)
				current[i] = m.items[pos].Clone()
			}
		}
		if len(existing) > 0 {
			return Result{Type: op, Failed: b.Items, Current: current}, errs.OverwriteRejected(existing...)
		}
	}

	res := Result{
		Type:          op,
		Successful:    make([]record.Record, len(b.Items)),
		SuccessfulIDs: b.IDs,
	}
	for i, item := range b.Items {
		id := b.IDs[i]
		if pos, ok := m.index[id]; ok {
			m.items[pos] = item
		} else {
			m.index[id] = len(m.items)
			m.items = append(m.items, item)
		}
		res.Successful[i] = item.Clone()
	}
	return res, nil
}

func (m *Memory) Delete(ctx context.Context, ids []ID) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Type: OpDelete}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Type: OpDelete}
	remove := map[int]bool{}
	lowest := len(m.items)
	for _, id := range ids {
		pos, ok := m.index[id]
		if !ok || remove[pos] {
			continue
		}
		remove[pos] = true
		lowest = min(lowest, pos)
		res.Successful = append(res.Successful, m.items[pos].Clone())
		res.SuccessfulIDs = append(res.SuccessfulIDs, id)
		delete(m.index, id)
	}
	if len(remove) == 0 {
		return res, nil
	}

	kept := m.items[:lowest]
	for pos := lowest; pos < len(m.items); pos++ {
		if remove[pos] {
			continue
		}
		kept = append(kept, m.items[pos])
	}
	clear(m.items[len(kept):])
	m.items = kept
	for pos := lowest; pos < len(m.items); pos++ {
		id, _ := m.identity.Identify(m.items[pos])
		m.index[id] = pos
	}
	return res, nil
}

func (m *Memory) Patch(ctx context.Context, updates []PatchUpdate) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Type: OpPatch}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	patched, order, err := ApplyPatches(m.identity, updates, func(id ID) (record.Record, bool) {
		pos, ok := m.index[id]
		if !ok {
			return nil, false
		}
		return m.items[pos], true
	})
	if err != nil {
		return Result{Type: OpPatch}, err
	}

	res := Result{Type: OpPatch, SuccessfulIDs: order}
	for _, id := range order {
		item := patched[id]
		m.items[m.index[id]] = item
		res.Successful = append(res.Successful, item.Clone())
	}
	return res, nil
}

func (m *Memory) IsUpdate(ctx context.Context, item record.Record) (bool, ID, error) {
	id, ok := m.identity.Identify(item)
	if !ok {
		return false, "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasLocked(id), id, nil
}
