package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func resultsOf(r *Result) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Kind == KindResult {
			out = append(out, e)
		}
	}
	return out
}

func TestRun_RejectedAdd(t *testing.T) {
	s := parse(t, `
name: rejected
store:
  data: [{ id: "1", v: 1 }]
steps:
  - add: [{ id: "1", v: 10 }]
    expect: { failed: ["1"], error: OVERWRITE_REJECTED, version: 0 }
  - add: [{ id: "1", v: 10 }]
    allowOverwrite: true
    expect: { successful: ["1"], version: 1 }
final:
  root: ["1"]
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	results := resultsOf(result)
	require.Len(t, results, 2)
	assert.Equal(t, "OVERWRITE_REJECTED", results[0].Fields["error"])
	assert.NotContains(t, results[1].Fields, "error")
	assert.Equal(t, 1, result.Count(KindEvent)-1, "only the accepted add is published")
	assert.Equal(t, int64(10), result.Final["root"][0]["v"])
}

func TestRun_GeneratedIDs(t *testing.T) {
	s := parse(t, `
name: generated
store:
  data: [{ id: "1" }]
steps:
  - add: [{ v: 1 }, { v: 2 }]
    expect: { successful: ["2", "3"] }
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, []string{"1", "2", "3"}, result.FinalIDs["root"])
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	s := parse(t, `
name: wrong
store:
  data: [{ id: "1", v: 1 }]
views:
  - name: all
steps:
  - delete: ["1"]
    expect: { successful: ["2"], error: NOT_FOUND, version: 7 }
final:
  root: ["1"]
  views: { all: ["1"], nope: [] }
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "steps[0].successful")
	assert.Contains(t, result.Errors[1], "steps[0].error")
	assert.Contains(t, result.Errors[2], "steps[0].version")
	assert.Contains(t, result.Errors[3], "final.root")
	assert.Contains(t, result.Errors[4], "final.views.all")
	assert.Contains(t, result.Errors[5], "final.views.nope")
}

func TestRun_RangeViewFromConfig(t *testing.T) {
	dir := t.TempDir()
	cue := `store: {
	name: "ranked"
	data: [{ id: "a", v: 3 }, { id: "b", v: 1 }, { id: "c", v: 2 }]
	views: top2: {
		sort: { path: "/v" }
		range: { offset: 0, count: 2 }
		track: true
	}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.cue"), []byte(cue), 0o644))
	scenario := `
name: ranked
config: store.cue
steps:
  - put: [{ id: "d", v: 0 }]
final:
  views: { top2: ["d", "b"] }
`
	path := filepath.Join(dir, "ranked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	var views []TraceEvent
	for _, e := range result.Trace {
		if e.Kind == KindView {
			views = append(views, e)
		}
	}
	require.Len(t, views, 2)
	assert.Equal(t, true, views[0].Fields["initial"])
	assert.Equal(t, 0, views[1].Step)
	assert.Contains(t, views[1].Fields, "added")
	assert.Contains(t, views[1].Fields, "removed")
	assert.Contains(t, views[1].Fields, "moved")
}

func TestRun_PatchErrorIsRecorded(t *testing.T) {
	s := parse(t, `
name: patch_missing
store:
  data: [{ id: "1", v: 1 }]
steps:
  - patch:
      - id: "9"
        ops: [{ op: replace, path: /v, value: 2 }]
    expect: { error: NOT_FOUND, failed: ["9"] }
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_DuplicateViewAcrossDefinitionAndScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.cue"), []byte(`store: views: v: {}`), 0o644))
	s := &Scenario{
		Name:   "dup",
		Config: filepath.Join(dir, "store.cue"),
		Views:  []ViewStep{{Name: "v"}},
		Steps:  []Step{{Delete: []string{"1"}}},
	}
	_, err := Run(t.Context(), s)
	assert.ErrorContains(t, err, "declared twice")
}
