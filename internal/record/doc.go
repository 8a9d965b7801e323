// Package record provides the value model for viewstore records.
//
// A Record is a JSON-like document: map[string]any whose values are nil,
// bool, numbers, strings, []any, or nested map[string]any. Numbers are
// normalized to int64 when integral and decoded from text, float64
// otherwise; every numeric Go kind is accepted and compared numerically.
//
// All other packages import record; record imports nothing internal.
//
// Key operations:
//   - Normalize: convert YAML/JSON/Go input into the record value shape
//   - Equal: deep equality with numeric equivalence (1 == 1.0)
//   - Compare: total order across kinds (nil < bool < number < string < array < object)
//   - Clone: deep copy
//   - MarshalCanonical: deterministic JSON for hashing, golden files and storage
package record
