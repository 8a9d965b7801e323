package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/viewstore/internal/config"
	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

// Scenario is a scripted sequence of mutations against one store and its
// views.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is a CUE store definition, relative to the scenario file.
	// Exactly one of Config and Store is set.
	Config string `yaml:"config,omitempty"`

	// Store is an inline store definition.
	Store *StoreSpec `yaml:"store,omitempty"`

	// Views are derived from the root in addition to any the definition
	// declares. Tracked views contribute their updates to the trace.
	Views []ViewStep `yaml:"views,omitempty"`

	// Steps run in order, each one mutation.
	Steps []Step `yaml:"steps"`

	// Final checks the contents after the last step.
	Final *FinalState `yaml:"final,omitempty"`
}

// StoreSpec mirrors the CUE store block.
type StoreSpec struct {
	Name                 string           `yaml:"name"`
	Identity             string           `yaml:"identity"`
	MediateDataConflicts bool             `yaml:"mediateDataConflicts"`
	Tracking             bool             `yaml:"tracking"`
	Policy               *PolicyStep      `yaml:"policy,omitempty"`
	Data                 []map[string]any `yaml:"data"`
}

// PolicyStep selects the conflict policy.
type PolicyStep struct {
	Kind       string `yaml:"kind"`
	MaxRetries int    `yaml:"maxRetries"`
}

// ViewStep declares a derived view.
type ViewStep struct {
	Name   string     `yaml:"name"`
	Filter string     `yaml:"filter,omitempty"`
	Sort   *SortStep  `yaml:"sort,omitempty"`
	Range  *RangeStep `yaml:"range,omitempty"`
	Select []string   `yaml:"select,omitempty"`
	Track  bool       `yaml:"track"`
}

// SortStep orders a view.
type SortStep struct {
	Path       string `yaml:"path,omitempty"`
	Expr       string `yaml:"expr,omitempty"`
	Descending bool   `yaml:"descending"`
}

// RangeStep windows a view.
type RangeStep struct {
	Offset int `yaml:"offset"`
	Count  int `yaml:"count"`
}

// Step is one mutation. Exactly one of Add, Put, Patch and Delete is set.
type Step struct {
	Add    []map[string]any `yaml:"add,omitempty"`
	Put    []map[string]any `yaml:"put,omitempty"`
	Patch  []PatchStep      `yaml:"patch,omitempty"`
	Delete []string         `yaml:"delete,omitempty"`

	// AllowOverwrite lets an add replace existing ids.
	AllowOverwrite bool `yaml:"allowOverwrite,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// PatchStep patches one record with RFC 6902 operations.
type PatchStep struct {
	ID  string           `yaml:"id"`
	Ops []map[string]any `yaml:"ops"`
}

// Expect checks the settled result of a step. Unset fields are not checked.
type Expect struct {
	Successful []string `yaml:"successful,omitempty"`
	Failed     []string `yaml:"failed,omitempty"`

	// Error is the expected error code, or empty for success.
	Error string `yaml:"error,omitempty"`

	// Version is the root version after the step.
	Version *int64 `yaml:"version,omitempty"`
}

// FinalState lists the expected ids of the root and of views, in order.
type FinalState struct {
	Root  []string            `yaml:"root,omitempty"`
	Views map[string][]string `yaml:"views,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. A relative Config is
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Config != "" && !filepath.IsAbs(s.Config) {
		s.Config = filepath.Join(filepath.Dir(path), s.Config)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Config == "") == (s.Store == nil) {
		return fmt.Errorf("exactly one of config and store is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool)
	for i, v := range s.Views {
		if v.Name == "" {
			return fmt.Errorf("views[%d]: name is required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("views[%d]: duplicate view %q", i, v.Name)
		}
		names[v.Name] = true
	}

	for i, step := range s.Steps {
		n := 0
		for _, set := range []bool{step.Add != nil, step.Put != nil, step.Patch != nil, step.Delete != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of add, put, patch and delete is required", i)
		}
		if step.AllowOverwrite && step.Add == nil {
			return fmt.Errorf("steps[%d]: allowOverwrite only applies to add", i)
		}
		for j, p := range step.Patch {
			if p.ID == "" {
				return fmt.Errorf("steps[%d].patch[%d]: id is required", i, j)
			}
		}
	}
	return nil
}

// definition returns the store definition the scenario runs against.
func (s *Scenario) definition() (*config.Definition, error) {
	var d *config.Definition
	if s.Config != "" {
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		d = loaded
	} else {
		d = s.Store.definition()
	}
	for _, v := range s.Views {
		if _, exists := d.View(v.Name); exists {
			return nil, fmt.Errorf("view %q is declared twice", v.Name)
		}
		d.Views = append(d.Views, v.spec())
	}
	return d, nil
}

func (s *StoreSpec) definition() *config.Definition {
	d := &config.Definition{
		Name:                 s.Name,
		Identity:             s.Identity,
		MediateDataConflicts: s.MediateDataConflicts,
		Tracking:             s.Tracking,
		Policy:               config.PolicySpec{Kind: config.PolicyPassive},
		Storage:              config.StorageSpec{Kind: config.StorageMemory},
		Data:                 records(s.Data),
	}
	if d.Identity == "" {
		d.Identity = "id"
	}
	if s.Policy != nil {
		d.Policy = config.PolicySpec{Kind: s.Policy.Kind, MaxRetries: s.Policy.MaxRetries}
	}
	return d
}

func (v ViewStep) spec() config.ViewSpec {
	spec := config.ViewSpec{
		Name:   v.Name,
		Filter: v.Filter,
		Select: v.Select,
		Track:  v.Track,
	}
	if v.Sort != nil {
		spec.Sort = &config.SortSpec{Path: v.Sort.Path, Expr: v.Sort.Expr, Descending: v.Sort.Descending}
	}
	if v.Range != nil {
		spec.Range = &config.RangeSpec{Offset: v.Range.Offset, Count: v.Range.Count}
	}
	return spec
}

func records(list []map[string]any) []record.Record {
	if list == nil {
		return nil
	}
	out := make([]record.Record, len(list))
	for i, m := range list {
		out[i] = record.From(m)
	}
	return out
}

func patchUpdates(list []PatchStep) ([]storage.PatchUpdate, error) {
	out := make([]storage.PatchUpdate, len(list))
	for i, p := range list {
		ops, err := patch.FromMaps(p.Ops)
		if err != nil {
			return nil, fmt.Errorf("patch %s: %w", p.ID, err)
		}
		out[i] = storage.PatchUpdate{ID: p.ID, Patch: ops}
	}
	return out, nil
}
