package query

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/roach88/viewstore/internal/record"
)

// Expression is a predicate written in CEL. The record under test is bound
// to the variable item:
//
//	item.v > 1 && item.tags.exists(t, t == "hot")
//
// An evaluation error (for example a missing key) or a non-bool result
// counts as no match.
type Expression struct {
	Source  string
	program cel.Program
}

func (*Expression) predicateNode() {}

// Expr compiles a CEL predicate.
func Expr(source string) (*Expression, error) {
	prg, err := compileCEL(source, cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, err
	}
	return &Expression{Source: source, program: prg}, nil
}

// MustExpr is Expr for sources known to be valid.
func MustExpr(source string) *Expression {
	e, err := Expr(source)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expression) Match(item record.Record) bool {
	out, _, err := e.program.Eval(map[string]any{"item": map[string]any(item)})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (e *Expression) String() string {
	return "expr(" + record.MustCanonical(e.Source) + ")"
}

func compileCEL(source string, vars ...cel.EnvOption) (cel.Program, error) {
	if source == "" {
		return nil, fmt.Errorf("expression can't be empty")
	}
	opts := append([]cel.EnvOption{cel.CrossTypeNumericComparisons(true)}, vars...)
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile CEL expression %q: %w", source, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create CEL program: %w", err)
	}
	return prg, nil
}
