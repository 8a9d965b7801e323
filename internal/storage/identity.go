package storage

import (
	"github.com/roach88/viewstore/internal/record"
)

// DefaultIdentityField is the field used when no identity is configured.
const DefaultIdentityField = "id"

// Identity derives a record's id.
type Identity interface {
	// Identify returns the id of item, or false when it has none.
	Identify(item record.Record) (ID, bool)

	// Field returns the backing field name for field-based identities.
	// Generated ids are only written into records when this reports true.
	Field() (string, bool)
}

type fieldIdentity struct {
	name string
}

// IdentityField derives ids from a scalar field. Integral numbers are
// rendered without a fraction, so {"id": 1} and {"id": "1"} share an id.
func IdentityField(name string) Identity {
	if name == "" {
		name = DefaultIdentityField
	}
	return fieldIdentity{name: name}
}

// DefaultIdentity is IdentityField("id").
func DefaultIdentity() Identity {
	return fieldIdentity{name: DefaultIdentityField}
}

func (f fieldIdentity) Identify(item record.Record) (ID, bool) {
	v, ok := item[f.name]
	if !ok {
		return "", false
	}
	id, ok := record.Scalar(v)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (f fieldIdentity) Field() (string, bool) { return f.name, true }

type funcIdentity struct {
	fn func(record.Record) ID
}

// IdentityFunc derives ids with fn. An empty result means no id. Records
// without an id cannot be stored under a function identity because there is
// no field to write a generated id into.
func IdentityFunc(fn func(record.Record) ID) Identity {
	return funcIdentity{fn: fn}
}

func (f funcIdentity) Identify(item record.Record) (ID, bool) {
	id := f.fn(item)
	return id, id != ""
}

func (funcIdentity) Field() (string, bool) { return "", false }

// IdentifyAll applies identity to every item.
func IdentifyAll(identity Identity, items ...record.Record) []ID {
	out := make([]ID, len(items))
	for i, item := range items {
		out[i], _ = identity.Identify(item)
	}
	return out
}
