package query

import (
	"fmt"
	"strings"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/record"
)

// Predicate is a boolean test over a record.
//
// This is a sealed interface. Implementations: *Comparison, *DeepEqual,
// *Conjunction, *Disjunction, *Negation, *FuncPredicate, *Expression.
type Predicate interface {
	Match(item record.Record) bool
	String() string
	predicateNode()
}

// CompareOp is a scalar comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
)

// Comparison compares the scalar at Path with Value.
//
// Ordering operators only match when both sides are scalars of the same
// kind (numbers compare across Go numeric types). A missing path never
// matches, except for OpNe which matches anything not equal to Value.
type Comparison struct {
	Op    CompareOp
	Path  patch.Pointer
	Value any
}

func (*Comparison) predicateNode() {}

func compare(op CompareOp, path patch.Pointer, value any) *Comparison {
	return &Comparison{Op: op, Path: path, Value: record.Normalize(value)}
}

func Eq(path patch.Pointer, value any) *Comparison { return compare(OpEq, path, value) }
func Ne(path patch.Pointer, value any) *Comparison { return compare(OpNe, path, value) }
func Lt(path patch.Pointer, value any) *Comparison { return compare(OpLt, path, value) }
func Le(path patch.Pointer, value any) *Comparison { return compare(OpLe, path, value) }
func Gt(path patch.Pointer, value any) *Comparison { return compare(OpGt, path, value) }
func Ge(path patch.Pointer, value any) *Comparison { return compare(OpGe, path, value) }

func (c *Comparison) Match(item record.Record) bool {
	v, ok := c.Path.Get(item)
	if c.Op == OpNe {
		return !ok || !record.Comparable(v, c.Value) || record.Compare(v, c.Value) != 0
	}
	if !ok || !record.Comparable(v, c.Value) {
		return false
	}
	n := record.Compare(v, c.Value)
	switch c.Op {
	case OpEq:
		return n == 0
	case OpLt:
		return n < 0
	case OpLe:
		return n <= 0
	case OpGt:
		return n > 0
	case OpGe:
		return n >= 0
	default:
		return false
	}
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s(%s,%s)", c.Op, c.Path, record.MustCanonical(c.Value))
}

// DeepEqual matches when the value at Path is structurally equal to Value.
type DeepEqual struct {
	Path  patch.Pointer
	Value any
}

func (*DeepEqual) predicateNode() {}

// DeepEq creates a structural equality predicate.
func DeepEq(path patch.Pointer, value any) *DeepEqual {
	return &DeepEqual{Path: path, Value: record.Normalize(value)}
}

func (d *DeepEqual) Match(item record.Record) bool {
	v, ok := d.Path.Get(item)
	return ok && record.Equal(v, d.Value)
}

func (d *DeepEqual) String() string {
	return fmt.Sprintf("deq(%s,%s)", d.Path, record.MustCanonical(d.Value))
}

// Conjunction matches when every predicate matches. An empty conjunction
// matches.
type Conjunction struct {
	Predicates []Predicate
}

func (*Conjunction) predicateNode() {}

func And(preds ...Predicate) *Conjunction { return &Conjunction{Predicates: preds} }

func (a *Conjunction) Match(item record.Record) bool {
	for _, p := range a.Predicates {
		if !p.Match(item) {
			return false
		}
	}
	return true
}

func (a *Conjunction) String() string { return joinPredicates("and", a.Predicates) }

// Disjunction matches when any predicate matches. An empty disjunction
// never matches.
type Disjunction struct {
	Predicates []Predicate
}

func (*Disjunction) predicateNode() {}

func Or(preds ...Predicate) *Disjunction { return &Disjunction{Predicates: preds} }

func (o *Disjunction) Match(item record.Record) bool {
	for _, p := range o.Predicates {
		if p.Match(item) {
			return true
		}
	}
	return false
}

func (o *Disjunction) String() string { return joinPredicates("or", o.Predicates) }

// Negation inverts a predicate.
type Negation struct {
	Predicate Predicate
}

func (*Negation) predicateNode() {}

func Not(p Predicate) *Negation { return &Negation{Predicate: p} }

func (n *Negation) Match(item record.Record) bool { return !n.Predicate.Match(item) }

func (n *Negation) String() string { return "not(" + n.Predicate.String() + ")" }

// FuncPredicate wraps a caller supplied test. Name identifies it in the
// serialized form.
type FuncPredicate struct {
	Name string
	Fn   func(record.Record) bool
}

func (*FuncPredicate) predicateNode() {}

// Func creates a custom predicate.
func Func(name string, fn func(record.Record) bool) *FuncPredicate {
	return &FuncPredicate{Name: name, Fn: fn}
}

func (f *FuncPredicate) Match(item record.Record) bool { return f.Fn(item) }

func (f *FuncPredicate) String() string { return "func(" + f.Name + ")" }

func joinPredicates(op string, preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return op + "(" + strings.Join(parts, ",") + ")"
}
