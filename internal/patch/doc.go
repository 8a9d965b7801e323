// Package patch provides structural addressing into records and partial
// updates expressed as ordered operation lists.
//
// A Pointer is an RFC 6901 JSON pointer: an ordered list of segments whose
// string form escapes "~" as "~0" and "/" as "~1". A Patch is an ordered
// list of add/replace/remove operations at pointers.
//
// Invariants:
//   - Patch.Apply is pure: the input record is never modified
//   - Apply fails instead of skipping an operation it cannot perform
//   - Diff(a, b).Apply(a) deep-equals b
package patch
