// Package action implements deferred store mutations and their sequential
// executor.
//
// An Action wraps an update function that performs one storage operation
// and reports what succeeded, what conflicted, and how to retry. Executing
// the action emits one Result per round on a replaying stream:
//
//	round 1: storage call        -> Result (maybe WithConflicts)
//	         observers + policy  -> at most one resolution
//	round 2: retry(chosen data)  -> Result
//	...
//	no resolution / no conflicts -> stream completes
//
// RESOLUTION TOKENS:
//
// A conflicting Result carries a one-shot token. RetryAll or Filter consume
// it, and only the first call counts. The token expires as soon as the
// notification returns. Resolving an expired token or a conflict-free
// result panics with an INVALID_RETRY *errs.Error, because deferring a
// retry would break the single-flight ordering of the manager.
//
// MANAGER:
//
// The Manager runs actions strictly one at a time in FIFO order. An enqueue
// on an idle manager drains the queue on the caller's goroutine; an enqueue
// while busy only appends. Because an action runs all of its retry rounds
// synchronously inside Do, action N's storage calls finish before action
// N+1 starts.
package action
