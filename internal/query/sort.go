package query

import (
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/record"
)

// SortKey orders two records.
type SortKey interface {
	Compare(a, b record.Record) int
	String() string
}

type pointerKey struct {
	path patch.Pointer
}

// ByField orders by a top-level field.
func ByField(name string) SortKey {
	return pointerKey{path: patch.NewPointer(name)}
}

// ByPointer orders by the value at a nested path. Missing values order
// first, like null.
func ByPointer(p patch.Pointer) SortKey {
	return pointerKey{path: p}
}

func (k pointerKey) Compare(a, b record.Record) int {
	va, _ := k.path.Get(a)
	vb, _ := k.path.Get(b)
	return record.Compare(va, vb)
}

func (k pointerKey) String() string { return k.path.String() }

type funcKey struct {
	name string
	cmp  func(a, b record.Record) int
}

// ByFunc orders with a caller supplied comparator.
func ByFunc(name string, cmp func(a, b record.Record) int) SortKey {
	return funcKey{name: name, cmp: cmp}
}

func (k funcKey) Compare(a, b record.Record) int { return k.cmp(a, b) }

func (k funcKey) String() string { return "func:" + k.name }

type exprKey struct {
	source  string
	program cel.Program
}

// ByExpr orders with a CEL comparator over the variables a and b that
// evaluates to a negative, zero or positive int. Evaluation errors count
// as a tie.
func ByExpr(source string) (SortKey, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	prg, err := compileCEL(source, cel.Variable("a", mapType), cel.Variable("b", mapType))
	if err != nil {
		return nil, err
	}
	return exprKey{source: source, program: prg}, nil
}

func (k exprKey) Compare(a, b record.Record) int {
	out, _, err := k.program.Eval(map[string]any{
		"a": map[string]any(a),
		"b": map[string]any(b),
	})
	if err != nil {
		return 0
	}
	n, ok := out.Value().(int64)
	if !ok {
		return 0
	}
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func (k exprKey) String() string { return "expr:" + record.MustCanonical(k.source) }

// Sort orders records by a key. Ties keep their input order.
type Sort struct {
	key        SortKey
	descending bool
}

func (*Sort) queryNode() {}

// NewSort creates a sort stage.
func NewSort(key SortKey, descending bool) *Sort {
	return &Sort{key: key, descending: descending}
}

func (s *Sort) Key() SortKey { return s.key }

func (s *Sort) Descending() bool { return s.descending }

// Compare orders a and b including the descending flag.
func (s *Sort) Compare(a, b record.Record) int {
	n := s.key.Compare(a, b)
	if s.descending {
		return -n
	}
	return n
}

func (s *Sort) Apply(items []record.Record) []record.Record {
	out := slices.Clone(items)
	if out == nil {
		out = []record.Record{}
	}
	slices.SortStableFunc(out, s.Compare)
	return out
}

func (*Sort) Incremental() bool { return true }

func (*Sort) Kind() Kind { return KindSort }

func (s *Sort) String() string { return Format(s, nil) }
