// Package config loads store definitions written in CUE.
//
// A definition describes one root store and its named views:
//
//	store: {
//		name:     "inventory"
//		identity: "id"
//		mediateDataConflicts: true
//		policy: { kind: "aggressive", maxRetries: 5 }
//		storage: { kind: "sqlite", path: "inventory.db" }
//		data: [{ id: "1", v: 1 }]
//		views: active: {
//			filter: "item.v > 1"
//			sort: { path: "/v", descending: true }
//			range: { offset: 0, count: 10 }
//			select: ["/id", "/v"]
//		}
//	}
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/viewstore/internal/record"
)

// Storage kinds.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Policy kinds.
const (
	PolicyPassive    = "passive"
	PolicyAggressive = "aggressive"
)

// Definition is a compiled store definition.
type Definition struct {
	Name                 string
	Identity             string
	MediateDataConflicts bool
	Tracking             bool
	Policy               PolicySpec
	Storage              StorageSpec
	Data                 []record.Record

	// Views are in declaration order.
	Views []ViewSpec
}

// PolicySpec selects the conflict policy.
type PolicySpec struct {
	Kind       string
	MaxRetries int
}

// StorageSpec selects the backing storage.
type StorageSpec struct {
	Kind string
	Path string
}

// Load reads and compiles the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(path, data)
}

// Parse compiles CUE source holding a top-level store field.
func Parse(filename string, src []byte) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}
	storeVal := v.LookupPath(cue.ParsePath("store"))
	if !storeVal.Exists() {
		return nil, &CompileError{Field: "store", Message: "store is required", Pos: v.Pos()}
	}
	return Compile(storeVal)
}

// Compile converts a store struct value into a Definition.
func Compile(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("store", err)
	}

	d := &Definition{
		Identity: "id",
		Policy:   PolicySpec{Kind: PolicyPassive},
		Storage:  StorageSpec{Kind: StorageMemory},
	}
	var err error
	if d.Name, _, err = lookupString(v, "name"); err != nil {
		return nil, err
	}
	if id, ok, err := lookupString(v, "identity"); err != nil {
		return nil, err
	} else if ok {
		d.Identity = id
	}
	if d.MediateDataConflicts, _, err = lookupBool(v, "mediateDataConflicts"); err != nil {
		return nil, err
	}
	if d.Tracking, _, err = lookupBool(v, "tracking"); err != nil {
		return nil, err
	}
	if d.Policy, err = compilePolicy(v); err != nil {
		return nil, err
	}
	if d.Storage, err = compileStorage(v); err != nil {
		return nil, err
	}
	if d.Data, err = compileData(v); err != nil {
		return nil, err
	}
	if d.Views, err = compileViews(v); err != nil {
		return nil, err
	}
	return d, nil
}

// View returns the named view spec.
func (d *Definition) View(name string) (ViewSpec, bool) {
	for _, spec := range d.Views {
		if spec.Name == name {
			return spec, true
		}
	}
	return ViewSpec{}, false
}

func compilePolicy(v cue.Value) (PolicySpec, error) {
	p := PolicySpec{Kind: PolicyPassive}
	pv := v.LookupPath(cue.ParsePath("policy"))
	if !pv.Exists() {
		return p, nil
	}
	if kind, ok, err := lookupString(pv, "kind"); err != nil {
		return p, err
	} else if ok {
		p.Kind = kind
	}
	switch p.Kind {
	case PolicyPassive, PolicyAggressive:
	default:
		return p, &CompileError{
			Field:   "policy.kind",
			Message: fmt.Sprintf("unknown policy %q (want %q or %q)", p.Kind, PolicyPassive, PolicyAggressive),
			Pos:     pv.Pos(),
		}
	}
	n, _, err := lookupInt(pv, "maxRetries")
	if err != nil {
		return p, err
	}
	p.MaxRetries = n
	return p, nil
}

func compileStorage(v cue.Value) (StorageSpec, error) {
	s := StorageSpec{Kind: StorageMemory}
	sv := v.LookupPath(cue.ParsePath("storage"))
	if !sv.Exists() {
		return s, nil
	}
	if kind, ok, err := lookupString(sv, "kind"); err != nil {
		return s, err
	} else if ok {
		s.Kind = kind
	}
	var err error
	if s.Path, _, err = lookupString(sv, "path"); err != nil {
		return s, err
	}
	switch s.Kind {
	case StorageMemory, StorageSQLite:
		return s, nil
	default:
		return s, &CompileError{
			Field:   "storage.kind",
			Message: fmt.Sprintf("unknown storage %q", s.Kind),
			Pos:     sv.Pos(),
		}
	}
}

func compileData(v cue.Value) ([]record.Record, error) {
	dv := v.LookupPath(cue.ParsePath("data"))
	if !dv.Exists() {
		return nil, nil
	}
	if dv.IncompleteKind() != cue.ListKind {
		return nil, &CompileError{Field: "data", Message: "data must be a list of objects", Pos: dv.Pos()}
	}
	raw, err := dv.MarshalJSON()
	if err != nil {
		return nil, formatCUEError("data", err)
	}
	items, err := record.UnmarshalList(raw)
	if err != nil {
		return nil, &CompileError{Field: "data", Message: err.Error(), Pos: dv.Pos()}
	}
	return items, nil
}

func lookupString(v cue.Value, path string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, &CompileError{Field: path, Message: "must be a string", Pos: f.Pos()}
	}
	return s, true, nil
}

func lookupBool(v cue.Value, path string) (bool, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, false, &CompileError{Field: path, Message: "must be a bool", Pos: f.Pos()}
	}
	return b, true, nil
}

func lookupInt(v cue.Value, path string) (int, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return 0, false, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, false, &CompileError{Field: path, Message: "must be an integer", Pos: f.Pos()}
	}
	return int(n), true, nil
}
