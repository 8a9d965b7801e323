package harness

import "github.com/roach88/viewstore/internal/record"

// Trace event kinds.
const (
	KindResult = "result"
	KindEvent  = "event"
	KindView   = "view"
)

// TraceEvent is one entry of a scenario trace. Step is -1 for the events
// that prime subscribers before the first step.
type TraceEvent struct {
	Kind string
	Step int

	// Fields holds the kind-specific payload in canonical value shape.
	Fields map[string]any
}

// canonical flattens the event into one object.
func (e TraceEvent) canonical() map[string]any {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["kind"] = e.Kind
	out["step"] = int64(e.Step)
	return out
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	// Trace holds step results, store events and view updates in order.
	Trace []TraceEvent

	// Errors holds failed expectations.
	Errors []string

	// Final maps "root" and each view name to its contents after the last
	// step.
	Final map[string][]record.Record

	// FinalIDs holds the identities of Final, in order.
	FinalIDs map[string][]string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Final:    make(map[string][]record.Record),
		FinalIDs: make(map[string][]string),
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(kind string, step int, fields map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Kind: kind, Step: step, Fields: fields})
}

// Count returns the number of trace events of kind.
func (r *Result) Count(kind string) int {
	n := 0
	for _, e := range r.Trace {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
