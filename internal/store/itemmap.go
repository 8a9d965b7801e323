package store

import (
	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

// Entry is an ItemMap slot.
type Entry struct {
	Item           record.Record
	Index          int
	UpdatedVersion int64
}

// ItemMap indexes a collection by id, remembering the version each id was
// last written at.
type ItemMap struct {
	entries map[storage.ID]*Entry
	order   []storage.ID
}

// BuildItemMap indexes items. Items without an id are skipped; two items
// with the same id fail with DUPLICATE_IDENTITY. versionOf supplies the
// UpdatedVersion of each id and may be nil.
func BuildItemMap(identity storage.Identity, items []record.Record, versionOf func(storage.ID) int64) (*ItemMap, error) {
	m := &ItemMap{entries: make(map[storage.ID]*Entry, len(items))}
	for _, item := range items {
		id, ok := identity.Identify(item)
		if !ok {
			continue
		}
		if _, dup := m.entries[id]; dup {
			return nil, errs.DuplicateIdentity(id)
		}
		var v int64
		if versionOf != nil {
			v = versionOf(id)
		}
		m.entries[id] = &Entry{Item: item, Index: len(m.order), UpdatedVersion: v}
		m.order = append(m.order, id)
	}
	return m, nil
}

// Get returns a copy of the entry for id.
func (m *ItemMap) Get(id storage.ID) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{Item: e.Item.Clone(), Index: e.Index, UpdatedVersion: e.UpdatedVersion}, true
}

// Has reports whether id is indexed.
func (m *ItemMap) Has(id storage.ID) bool {
	if m == nil {
		return false
	}
	_, ok := m.entries[id]
	return ok
}

// Len returns the number of entries.
func (m *ItemMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// IDs returns the ids in collection order.
func (m *ItemMap) IDs() []storage.ID {
	if m == nil {
		return nil
	}
	return append([]storage.ID(nil), m.order...)
}

// Items returns copies of the records in collection order.
func (m *ItemMap) Items() []record.Record {
	if m == nil {
		return nil
	}
	out := make([]record.Record, len(m.order))
	for i, id := range m.order {
		out[i] = m.entries[id].Item.Clone()
	}
	return out
}

// stale reports whether id was written after version.
func (m *ItemMap) stale(id storage.ID, version int64) (record.Record, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.entries[id]
	if !ok || e.UpdatedVersion <= version {
		return nil, false
	}
	return e.Item.Clone(), true
}

func (m *ItemMap) versionOf(id storage.ID) int64 {
	if m == nil {
		return 0
	}
	if e, ok := m.entries[id]; ok {
		return e.UpdatedVersion
	}
	return 0
}
