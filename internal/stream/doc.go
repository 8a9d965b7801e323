// Package stream provides push-based event streams with explicit
// subscriber handles.
//
// A Stream is cold: every Subscribe runs its subscribe function. A Subject
// is hot: it owns the list of active subscribers, multicasts Next/Error/
// Complete to them, and optionally replays its history to late subscribers.
//
// Delivery guarantees per subscriber:
//   - events arrive in the order they were pushed
//   - callbacks never run concurrently for the same subscriber; an event
//     pushed while a callback is running (from a nested call or another
//     goroutine) is queued and delivered when that callback returns
//   - nothing is delivered after Error, Complete or Unsubscribe
package stream
