package config

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/query"
)

// ViewSpec describes a named derived view. Stages apply in the order
// filter, sort, range, select.
type ViewSpec struct {
	Name   string
	Filter string // CEL over item
	Sort   *SortSpec
	Range  *RangeSpec
	Select []string
	Track  bool
}

// SortSpec orders a view by a JSON pointer or a CEL comparator over a and b.
type SortSpec struct {
	Path       string
	Expr       string
	Descending bool
}

// RangeSpec windows a view.
type RangeSpec struct {
	Offset int
	Count  int
}

// Query builds the view query.
func (v ViewSpec) Query() (*query.Compound, error) {
	var stages []query.Query
	if v.Filter != "" {
		expr, err := query.Expr(v.Filter)
		if err != nil {
			return nil, fmt.Errorf("view %s: filter: %w", v.Name, err)
		}
		stages = append(stages, query.NewFilter(expr))
	}
	if v.Sort != nil {
		key, err := v.Sort.key()
		if err != nil {
			return nil, fmt.Errorf("view %s: sort: %w", v.Name, err)
		}
		stages = append(stages, query.NewSort(key, v.Sort.Descending))
	}
	if v.Range != nil {
		stages = append(stages, query.NewRange(v.Range.Offset, v.Range.Count))
	}
	if len(v.Select) > 0 {
		paths := make([]patch.Pointer, 0, len(v.Select))
		for _, s := range v.Select {
			p, err := patch.ParsePointer(s)
			if err != nil {
				return nil, fmt.Errorf("view %s: select: %w", v.Name, err)
			}
			paths = append(paths, p)
		}
		stages = append(stages, query.SelectPaths(paths...))
	}
	return query.NewCompound(stages...), nil
}

func (s *SortSpec) key() (query.SortKey, error) {
	switch {
	case s.Path != "" && s.Expr != "":
		return nil, fmt.Errorf("path and expr are mutually exclusive")
	case s.Expr != "":
		return query.ByExpr(s.Expr)
	case s.Path != "":
		p, err := patch.ParsePointer(s.Path)
		if err != nil {
			return nil, err
		}
		return query.ByPointer(p), nil
	}
	return nil, fmt.Errorf("one of path or expr is required")
}

func compileViews(v cue.Value) ([]ViewSpec, error) {
	vv := v.LookupPath(cue.ParsePath("views"))
	if !vv.Exists() {
		return nil, nil
	}
	iter, err := vv.Fields()
	if err != nil {
		return nil, &CompileError{Field: "views", Message: "views must be a struct", Pos: vv.Pos()}
	}

	var views []ViewSpec
	for iter.Next() {
		spec, err := compileView(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		views = append(views, spec)
	}
	return views, nil
}

func compileView(name string, v cue.Value) (ViewSpec, error) {
	field := "views." + name
	spec := ViewSpec{Name: name}

	var err error
	if spec.Filter, _, err = lookupString(v, "filter"); err != nil {
		return spec, prefixField(field, err)
	}
	if spec.Track, _, err = lookupBool(v, "track"); err != nil {
		return spec, prefixField(field, err)
	}

	if sv := v.LookupPath(cue.ParsePath("sort")); sv.Exists() {
		s := &SortSpec{}
		if s.Path, _, err = lookupString(sv, "path"); err != nil {
			return spec, prefixField(field+".sort", err)
		}
		if s.Expr, _, err = lookupString(sv, "expr"); err != nil {
			return spec, prefixField(field+".sort", err)
		}
		if s.Descending, _, err = lookupBool(sv, "descending"); err != nil {
			return spec, prefixField(field+".sort", err)
		}
		spec.Sort = s
	}

	if rv := v.LookupPath(cue.ParsePath("range")); rv.Exists() {
		r := &RangeSpec{}
		if r.Offset, _, err = lookupInt(rv, "offset"); err != nil {
			return spec, prefixField(field+".range", err)
		}
		var ok bool
		if r.Count, ok, err = lookupInt(rv, "count"); err != nil {
			return spec, prefixField(field+".range", err)
		} else if !ok {
			return spec, &CompileError{Field: field + ".range.count", Message: "count is required", Pos: rv.Pos()}
		}
		if r.Offset < 0 || r.Count < 0 {
			return spec, &CompileError{Field: field + ".range", Message: "offset and count must not be negative", Pos: rv.Pos()}
		}
		spec.Range = r
	}

	if sel := v.LookupPath(cue.ParsePath("select")); sel.Exists() {
		list, err := sel.List()
		if err != nil {
			return spec, &CompileError{Field: field + ".select", Message: "select must be a list of pointers", Pos: sel.Pos()}
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return spec, &CompileError{Field: field + ".select", Message: "select entries must be strings", Pos: list.Value().Pos()}
			}
			spec.Select = append(spec.Select, s)
		}
	}

	// Surface CEL and pointer errors at load time.
	if _, err := spec.Query(); err != nil {
		return spec, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return spec, nil
}

func prefixField(prefix string, err error) error {
	if ce, ok := err.(*CompileError); ok {
		return &CompileError{Field: prefix + "." + ce.Field, Message: ce.Message, Pos: ce.Pos}
	}
	return err
}
