package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "tracked_filter.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tracked_filter", scenario.Name)
	require.NotNil(t, scenario.Store)
	assert.Len(t, scenario.Store.Data, 2)
	require.Len(t, scenario.Views, 1)
	assert.True(t, scenario.Views[0].Track)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, "2", scenario.Steps[1].Patch[0].ID)
	assert.Equal(t, []string{"1"}, scenario.Steps[2].Delete)
	require.NotNil(t, scenario.Steps[0].Expect.Version)
	assert.Equal(t, int64(1), *scenario.Steps[0].Expect.Version)
}

func TestLoadScenario_ResolvesConfigRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	content := `
name: with_config
config: store.cue
steps:
  - delete: ["1"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "store.cue"), scenario.Config)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown field",
			src:  "name: x\nstore: {}\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			src:  "store: {}\nsteps: [{delete: [\"1\"]}]\n",
			want: "name is required",
		},
		{
			name: "no store",
			src:  "name: x\nsteps: [{delete: [\"1\"]}]\n",
			want: "exactly one of config and store",
		},
		{
			name: "both stores",
			src:  "name: x\nconfig: a.cue\nstore: {}\nsteps: [{delete: [\"1\"]}]\n",
			want: "exactly one of config and store",
		},
		{
			name: "no steps",
			src:  "name: x\nstore: {}\n",
			want: "steps list is required",
		},
		{
			name: "two ops in a step",
			src:  "name: x\nstore: {}\nsteps: [{delete: [\"1\"], add: [{id: \"2\"}]}]\n",
			want: "steps[0]: exactly one of",
		},
		{
			name: "overwrite on put",
			src:  "name: x\nstore: {}\nsteps: [{put: [{id: \"2\"}], allowOverwrite: true}]\n",
			want: "allowOverwrite only applies to add",
		},
		{
			name: "patch without id",
			src:  "name: x\nstore: {}\nsteps: [{patch: [{ops: []}]}]\n",
			want: "steps[0].patch[0]: id is required",
		},
		{
			name: "duplicate view",
			src:  "name: x\nstore: {}\nviews: [{name: a}, {name: a}]\nsteps: [{delete: [\"1\"]}]\n",
			want: "duplicate view",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreSpec_Definition(t *testing.T) {
	spec := &StoreSpec{
		MediateDataConflicts: true,
		Policy:               &PolicyStep{Kind: "aggressive", MaxRetries: 2},
		Data:                 []map[string]any{{"id": "1", "v": 1}},
	}
	d := spec.definition()
	assert.Equal(t, "id", d.Identity)
	assert.True(t, d.MediateDataConflicts)
	assert.Equal(t, "aggressive", d.Policy.Kind)
	assert.Equal(t, int64(1), d.Data[0]["v"])
}
