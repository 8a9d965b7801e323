// Package store orchestrates a Storage behind a versioned, observable
// collection.
//
// A root Store owns a Storage, an action Manager and a version counter.
// Every mutation (Add, Put, Patch, Delete) is wrapped in an action.Action
// and executed by the Manager one at a time. Accepted rounds bump the
// version and stamp each mutated id with it; with conflict mediation on,
// data targeting an id stamped after the action was issued is reported as
// a conflict instead of being written.
//
// # Derived stores
//
// Filter, Sort, Range and Query return derived stores that share the root's
// storage and extend a Compound query. A derived store reads through to its
// source until it is tracked (see Track) or released, at which point it
// owns a private copy.
//
// # Events
//
// Observe emits one Event per accepted mutation round, primed with a
// synthetic add describing the current contents. Events carry the version
// they were committed at, so a subscriber primed with a snapshot skips
// events the snapshot already reflects. Publishing never holds the store
// lock.
package store
