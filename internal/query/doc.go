// Package query implements the view query algebra: Filter, Sort, Range,
// Select and Compound.
//
// Every query is a pure function over an ordered sequence of records.
// Query and Predicate are sealed interfaces; only types in this package
// implement them, so backends (see sqlstorage) can type switch
// exhaustively.
//
// Incrementality:
//
// A query is incremental when applying it to a local delta yields the same
// membership and order as applying it to the whole collection. Filter, Sort
// and Select are incremental. Range is never incremental because its output
// depends on global ordinal position. A Compound is incremental when all of
// its stages are.
//
// Composition:
//
//	q := query.NewCompound(
//	    query.NewFilter(query.Gt(patch.NewPointer("v"), 1)),
//	    query.NewSort(query.ByField("v"), false),
//	).WithQuery(query.NewRange(0, 10))
//
// WithQuery splices the stages of a compound argument instead of nesting
// it, so composition is associative.
package query
