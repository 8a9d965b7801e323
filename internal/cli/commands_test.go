package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeCUE = `
store: {
	name: "inventory"
	data: [
		{ id: "1", v: 1 },
		{ id: "2", v: 2 },
		{ id: "3", v: 3 },
	]
	views: {
		high: { filter: "item.v > 1" }
	}
}
`

const scenarioYAML = `name: add_one
store:
  name: tiny
  data:
    - { id: "1", v: 1 }
steps:
  - add: [{ id: "2", v: 2 }]
    expect: { successful: ["2"], version: 1 }
final:
  root: ["1", "2"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestQuery_Text(t *testing.T) {
	cfg := writeFile(t, "store.cue", storeCUE)

	stdout, _, err := execute(t, "query", "--config", cfg, "--sort", "/v", "--desc", "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"3\",\"v\":3}\n{\"id\":\"2\",\"v\":2}\n", stdout)
}

func TestQuery_ViewJSON(t *testing.T) {
	cfg := writeFile(t, "store.cue", storeCUE)

	stdout, _, err := execute(t, "query", "-c", cfg, "--view", "high", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "inventory", resp.Data.Store)
	assert.Equal(t, "high", resp.Data.View)
	assert.Equal(t, int64(0), resp.Data.Version)
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "2", resp.Data.Items[0]["id"])
	assert.Equal(t, "3", resp.Data.Items[1]["id"])
}

func TestQuery_Errors(t *testing.T) {
	cfg := writeFile(t, "store.cue", storeCUE)
	bad := writeFile(t, "bad.cue", `store: { name: 1 }`)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing_file", []string{"query", "-c", filepath.Join(t.TempDir(), "nope.cue")}, "definition not found"},
		{"bad_definition", []string{"query", "-c", bad}, "failed to load definition"},
		{"unknown_view", []string{"query", "-c", cfg, "--view", "low"}, "failed to open view"},
		{"negative_offset", []string{"query", "-c", cfg, "--offset", "-1"}, "invalid query flags"},
		{"bad_filter", []string{"query", "-c", cfg, "--filter", "item.v >"}, "invalid query flags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, stderr, "Error [")
		})
	}
}

func TestQuery_ConfigRequired(t *testing.T) {
	_, _, err := execute(t, "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestRun_PassingScenario(t *testing.T) {
	path := writeFile(t, "add.yaml", scenarioYAML)

	stdout, stderr, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "✓ add_one")
	assert.Contains(t, stderr, "1 passed, 0 failed, 1 total")
	assert.True(t, strings.HasPrefix(stdout, `{"final":`))
}

func TestRun_FailingScenario(t *testing.T) {
	failing := strings.Replace(scenarioYAML, `version: 1`, `version: 7`, 1)
	path := writeFile(t, "add.yaml", failing)

	_, stderr, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "✗ add_one")
	assert.Contains(t, stderr, "0 passed, 1 failed, 1 total")
}

func TestRun_GoldenUpdateThenCompare(t *testing.T) {
	path := writeFile(t, "add.yaml", scenarioYAML)
	golden := filepath.Join(t.TempDir(), "golden")

	_, _, err := execute(t, "run", path, "--golden", golden, "--update")
	require.NoError(t, err)
	written, err := os.ReadFile(filepath.Join(golden, "add_one.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(written), `"scenario_name":"add_one"`)

	_, _, err = execute(t, "run", path, "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "add_one.golden"), []byte("{}"), 0o644))
	_, stderr, err := execute(t, "run", path, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, stderr, "trace does not match")
}

func TestRun_JSON(t *testing.T) {
	path := writeFile(t, "add.yaml", scenarioYAML)

	stdout, _, err := execute(t, "run", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "add_one", resp.Data.Scenarios[0].Name)
}

func TestRun_CommandErrors(t *testing.T) {
	path := writeFile(t, "add.yaml", scenarioYAML)

	_, _, err := execute(t, "run", path, "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDiff(t *testing.T) {
	a := writeFile(t, "a.json", `{"id":"1","v":1}`)
	b := writeFile(t, "b.json", `{"id":"1","v":2}`)

	stdout, _, err := execute(t, "diff", a, b)
	require.NoError(t, err)
	assert.Equal(t, `[{"op":"replace","path":"/v","value":2}]`+"\n", stdout)

	stdout, _, err = execute(t, "diff", a, b, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string           `json:"status"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "replace", resp.Data[0]["op"])
	assert.Equal(t, "/v", resp.Data[0]["path"])
}

func TestDiff_BadInput(t *testing.T) {
	a := writeFile(t, "a.json", `{"id":"1"}`)
	b := writeFile(t, "b.json", `[1, 2]`)

	_, _, err := execute(t, "diff", a, b)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
