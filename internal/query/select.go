package query

import (
	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/record"
)

// Select reshapes each record to a template. Every template key is looked
// up in the source at the same path; a nested non-empty object in the
// template recurses, any other template value copies the source value as
// is. Keys missing from the source are omitted.
type Select struct {
	template record.Record
}

func (*Select) queryNode() {}

// NewSelect creates a select stage from a shape template.
func NewSelect(template record.Record) *Select {
	t, _ := record.Normalize(map[string]any(template)).(map[string]any)
	return &Select{template: record.Record(t)}
}

// SelectPaths builds a select whose template contains exactly the given
// paths.
func SelectPaths(paths ...patch.Pointer) *Select {
	tmpl := map[string]any{}
	for _, p := range paths {
		segs := p.Segments()
		if len(segs) == 0 {
			continue
		}
		node := tmpl
		for _, seg := range segs[:len(segs)-1] {
			next, ok := node[seg].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[seg] = next
			}
			node = next
		}
		if _, exists := node[segs[len(segs)-1]]; !exists {
			node[segs[len(segs)-1]] = true
		}
	}
	return &Select{template: record.Record(tmpl)}
}

// Template returns a copy of the shape template.
func (s *Select) Template() record.Record { return s.template.Clone() }

// Project reshapes a single record.
func (s *Select) Project(item record.Record) record.Record {
	return record.Record(project(s.template, map[string]any(item), patch.NewPointer()))
}

func project(tmpl map[string]any, src map[string]any, at patch.Pointer) map[string]any {
	out := make(map[string]any, len(tmpl))
	for k, tv := range tmpl {
		p := at.Push(k)
		sv, ok := p.Get(src)
		if !ok {
			continue
		}
		sub, isObj := tv.(map[string]any)
		if isObj && len(sub) > 0 && record.IsPlainObject(sv) {
			out[k] = project(sub, src, p)
			continue
		}
		out[k] = record.Clone(sv)
	}
	return out
}

func (s *Select) Apply(items []record.Record) []record.Record {
	out := make([]record.Record, len(items))
	for i, item := range items {
		out[i] = s.Project(item)
	}
	return out
}

func (*Select) Incremental() bool { return true }

func (*Select) Kind() Kind { return KindSelect }

func (s *Select) String() string { return Format(s, nil) }
