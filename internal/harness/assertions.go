package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Where    string // "steps[2].successful", "final.views.active", ...
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Where)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func checkStep(i int, want Expect, got settled) []string {
	var out []string
	where := fmt.Sprintf("steps[%d]", i)
	if want.Successful != nil {
		if msg := compareIDs(where+".successful", want.Successful, got.successful); msg != "" {
			out = append(out, msg)
		}
	}
	if want.Failed != nil {
		if msg := compareIDs(where+".failed", want.Failed, got.failed); msg != "" {
			out = append(out, msg)
		}
	}
	if want.Error != got.code {
		out = append(out, (&AssertionError{
			Where:    where + ".error",
			Expected: orNone(want.Error),
			Actual:   orNone(got.code),
		}).Error())
	}
	if want.Version != nil && *want.Version != got.version {
		out = append(out, (&AssertionError{
			Where:    where + ".version",
			Expected: fmt.Sprint(*want.Version),
			Actual:   fmt.Sprint(got.version),
		}).Error())
	}
	return out
}

func checkFinal(r *Result, want FinalState) []string {
	var out []string
	if want.Root != nil {
		if msg := compareIDs("final.root", want.Root, r.FinalIDs["root"]); msg != "" {
			out = append(out, msg)
		}
	}

	names := make([]string, 0, len(want.Views))
	for name := range want.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ids, ok := r.FinalIDs[name]
		if !ok || name == "root" {
			out = append(out, (&AssertionError{
				Where:    "final.views." + name,
				Expected: "a declared view",
				Actual:   "no such view",
			}).Error())
			continue
		}
		if msg := compareIDs("final.views."+name, want.Views[name], ids); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// compareIDs compares ordered id lists.
func compareIDs(where string, want, got []string) string {
	if slices.Equal(want, got) || (len(want) == 0 && len(got) == 0) {
		return ""
	}
	return (&AssertionError{
		Where:    where,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
	}).Error()
}

func orNone(s string) string {
	if s == "" {
		return "no error"
	}
	return s
}
