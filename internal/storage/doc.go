// Package storage defines the raw collection contract consumed by stores
// and provides the in-memory implementation.
//
// A Storage owns an ordered sequence of records keyed by a derived
// identity. It knows nothing about versions or conflicts between writers;
// those live in the store package. Storage-level failures are whole-batch:
// an add that would overwrite an existing id, or a patch naming a missing
// id, fails without applying any part of the batch.
//
// Positions are dense. After a delete every remaining id maps to its
// current index in the sequence.
package storage
