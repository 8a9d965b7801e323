package sqlstorage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
)

// Plan is the split of a fetch between SQL and in-memory evaluation.
type Plan struct {
	SQL      string
	Args     []any
	Pushed   int         // number of leading stages compiled into SQL
	Residual query.Query // nil when nothing is left to evaluate
}

const selectDocs = "SELECT doc FROM records"

// PlanFetch compiles the leading run of pushable Filter stages of q.
//
// Rows are always ordered by position so the residual stages see the same
// sequence the in-memory storage would.
func PlanFetch(q query.Query) Plan {
	stages := query.Stages(q)
	var (
		where []string
		args  []any
		n     int
	)
	for _, stage := range stages {
		f, ok := stage.(*query.Filter)
		if !ok {
			break
		}
		sql, params, ok := CompilePredicate(f.Predicate())
		if !ok {
			break
		}
		where = append(where, sql)
		args = append(args, params...)
		n++
	}

	plan := Plan{SQL: selectDocs, Args: args, Pushed: n}
	if len(where) > 0 {
		plan.SQL += " WHERE " + strings.Join(where, " AND ")
	}
	plan.SQL += " ORDER BY pos ASC"
	if rest := stages[n:]; len(rest) > 0 {
		plan.Residual = query.NewCompound(rest...)
	}
	return plan
}

// CompilePredicate converts p to a SQL boolean expression over the doc
// column. ok is false when p is outside the pushable fragment. A nil
// predicate matches everything.
func CompilePredicate(p query.Predicate) (sql string, args []any, ok bool) {
	if p == nil {
		return "1 = 1", nil, true
	}
	switch pred := p.(type) {
	case *query.Comparison:
		return compileComparison(pred)
	case *query.Conjunction:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *query.Disjunction:
		return compileJunction(pred.Predicates, " OR ", "0 = 1")
	default:
		return "", nil, false
	}
}

var sqlOperators = map[query.CompareOp]string{
	query.OpEq: "=",
	query.OpLt: "<",
	query.OpLe: "<=",
	query.OpGt: ">",
	query.OpGe: ">=",
}

func compileComparison(c *query.Comparison) (string, []any, bool) {
	op, ok := sqlOperators[c.Op]
	if !ok {
		return "", nil, false
	}
	path, ok := jsonPath(c.Path)
	if !ok {
		return "", nil, false
	}

	var guard string
	switch record.KindOf(c.Value) {
	case record.KindNumber:
		guard = "json_type(doc, ?) IN ('integer', 'real')"
	case record.KindString:
		guard = "json_type(doc, ?) = 'text'"
	default:
		return "", nil, false
	}
	param, ok := sqlParam(c.Value)
	if !ok {
		return "", nil, false
	}
	sql := fmt.Sprintf("(%s AND json_extract(doc, ?) %s ?)", guard, op)
	return sql, []any{path, path, param}, true
}

func compileJunction(preds []query.Predicate, sep, empty string) (string, []any, bool) {
	if len(preds) == 0 {
		return empty, nil, true
	}
	parts := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		sql, params, ok := CompilePredicate(p)
		if !ok {
			return "", nil, false
		}
		parts = append(parts, sql)
		args = append(args, params...)
	}
	return "(" + strings.Join(parts, sep) + ")", args, true
}

// jsonPath renders p as a SQLite JSON path with quoted object keys.
// Segments that could address array elements, and segments that would need
// escaping inside the quotes, are not pushed.
func jsonPath(p patch.Pointer) (string, bool) {
	if p.IsRoot() {
		return "", false
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range p.Segments() {
		if seg == "" || strings.ContainsAny(seg, "\"\\") {
			return "", false
		}
		if _, err := strconv.Atoi(seg); err == nil || seg == "-" {
			return "", false
		}
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), true
}

func sqlParam(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return val, true
	case float64:
		return val, true
	default:
		return nil, false
	}
}
