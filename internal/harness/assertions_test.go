package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Where: "steps[1].version", Expected: "2", Actual: "1"}
	assert.Equal(t, "Assertion failed: steps[1].version\n  Expected: 2\n  Actual: 1", err.Error())
}

func TestCheckStep(t *testing.T) {
	v := int64(2)
	got := settled{successful: []string{"1", "2"}, version: 2}

	assert.Empty(t, checkStep(0, Expect{}, got))
	assert.Empty(t, checkStep(0, Expect{Successful: []string{"1", "2"}, Version: &v}, got))

	msgs := checkStep(3, Expect{Successful: []string{"2", "1"}}, got)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "steps[3].successful", "order matters")

	msgs = checkStep(0, Expect{Error: "CONFLICT"}, got)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Expected: CONFLICT")
	assert.Contains(t, msgs[0], "Actual: no error")
}

func TestCheckStep_EmptyListsMatch(t *testing.T) {
	assert.Empty(t, checkStep(0, Expect{Failed: []string{}}, settled{}))
}

func TestCheckFinal(t *testing.T) {
	r := NewResult()
	r.FinalIDs["root"] = []string{"1", "2"}
	r.FinalIDs["view"] = []string{"2"}

	assert.Empty(t, checkFinal(r, FinalState{Root: []string{"1", "2"}, Views: map[string][]string{"view": {"2"}}}))

	msgs := checkFinal(r, FinalState{Views: map[string][]string{"root": {"1", "2"}}})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "no such view")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
