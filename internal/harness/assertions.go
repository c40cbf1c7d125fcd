package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the pass reports to help debug the failure.
type AssertionError struct {
	Assertion Assertion
	Expected  string
	Actual    string
	Result    *Result
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Assertion)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Result != nil && len(e.Result.Reports) > 0 {
		fmt.Fprintf(&buf, "\nPasses:\n")
		for _, rep := range e.Result.Reports {
			fmt.Fprintf(&buf, "  [%d] %s reads=%v writes=%v\n", rep.Pass, rep.Verdict, rep.Reads, rep.Writes)
			for _, d := range rep.Divergences {
				fmt.Fprintf(&buf, "      %s\n", d)
			}
		}
	}
	return buf.String()
}

// evaluate checks one assertion against a result.
func evaluate(r *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Assertion: a, Expected: expected, Actual: actual, Result: r}
	}

	switch a.Type {
	case AssertFileEquals, AssertFileContains:
		got, ok := r.Files[a.Name]
		if !ok {
			return fail(fmt.Sprintf("file %s", a.Name), "no such file")
		}
		if a.Type == AssertFileEquals && got != a.Content {
			return fail(fmt.Sprintf("%q", a.Content), fmt.Sprintf("%q", got))
		}
		if a.Type == AssertFileContains && !contains(got, a.Content) {
			return fail(fmt.Sprintf("content containing %q", a.Content), fmt.Sprintf("%q", got))
		}

	case AssertDivergence:
		rep := r.report(a.Pass)
		if rep == nil {
			return fail(fmt.Sprintf("pass %d", a.Pass), fmt.Sprintf("%d passes ran", len(r.Reports)))
		}
		var found []string
		for _, d := range rep.Divergences {
			found = append(found, d.Name+" "+d.Reason)
			if d.Name == a.Name && (a.Reason == "" || d.Reason == a.Reason) {
				return nil
			}
		}
		want := a.Name
		if a.Reason != "" {
			want += " " + a.Reason
		}
		return fail("divergence "+want, fmt.Sprintf("divergences %v", found))

	case AssertRead, AssertWritten:
		rep := r.report(a.Pass)
		if rep == nil {
			return fail(fmt.Sprintf("pass %d", a.Pass), fmt.Sprintf("%d passes ran", len(r.Reports)))
		}
		names := rep.Reads
		if a.Type == AssertWritten {
			names = rep.Writes
		}
		if !slices.Contains(names, a.Name) {
			return fail(a.Name, fmt.Sprintf("%v", names))
		}

	case AssertMessageCount:
		if n := countLevel(r, a.Level); n != a.Count {
			return fail(fmt.Sprintf("%d %s messages", a.Count, a.Level), fmt.Sprintf("%d", n))
		}

	case AssertMessageContains:
		var texts []string
		for _, m := range r.Messages {
			if m.Level != a.Level {
				continue
			}
			if contains(m.Text, a.Content) {
				return nil
			}
			texts = append(texts, m.Text)
		}
		return fail(fmt.Sprintf("a %s containing %q", a.Level, a.Content), fmt.Sprintf("%q", texts))

	default:
		return fail("a known assertion type", a.Type)
	}
	return nil
}

func countLevel(r *Result, level string) int {
	n := 0
	for _, m := range r.Messages {
		if m.Level == level {
			n++
		}
	}
	return n
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
