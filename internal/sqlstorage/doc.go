// Package sqlstorage implements storage.Storage on SQLite.
//
// Records live in a single table keyed by id with an explicit dense
// position column, so ordering and renumbering semantics match the
// in-memory storage exactly. Documents are stored as canonical JSON.
//
// FILTER PUSH-DOWN:
//
// Fetch compiles the leading run of Filter stages into a WHERE clause when
// every predicate in them is expressible in SQL:
//
//	eq/lt/le/gt/ge on a string or number   json_type guard + json_extract
//	and / or of the above                  AND / OR
//
// Everything else (ne, not, deep equality, custom functions, CEL, later
// stages) is evaluated in memory with the query package on the fetched
// rows. The json_type guard reproduces the in-memory rule that ordering
// comparisons only match values of the same kind.
//
// All values are parameterized, never interpolated.
package sqlstorage
