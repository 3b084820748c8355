package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", ev.Seq, ev.Op, ev.Case, ev.EventIDs)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertBalance:
		return compareDecimal(a.Type, a.Value, result.State.CurrencyBalance)
	case AssertDisplay:
		if result.Display != a.Value {
			return &AssertionError{Type: a.Type, Expected: a.Value, Actual: result.Display}
		}
		return nil
	case AssertInventory:
		return assertEntry(a, result.State.Inventory)
	case AssertBaseStat:
		return assertEntry(a, result.State.BaseStats)
	case AssertStat:
		v, ok := result.State.Stat(a.Name)
		return assertPresence(a, v, ok)
	case AssertBuffActive:
		found := slices.Contains(result.Buffs, a.Name)
		if found == a.Absent {
			return &AssertionError{
				Type:     a.Type,
				Expected: presenceText(a.Name, !a.Absent),
				Actual:   fmt.Sprintf("active buffs %v", result.Buffs),
			}
		}
		return nil
	case AssertAlertContains:
		for _, alert := range result.State.Alerts {
			if strings.Contains(alert, a.Text) {
				return nil
			}
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("an alert containing %q", a.Text),
			Actual:   fmt.Sprintf("%q", result.State.Alerts),
		}
	case AssertEventCount:
		if len(result.Events) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d events", a.Count),
				Actual:   fmt.Sprintf("%d events", len(result.Events)),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertEvent:
		return assertEvent(result, a)
	case AssertTraceContains:
		if countTrace(result.Trace, a) == 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("a %s step with case %s", a.Op, caseOrAny(a.Case)),
				Actual:   "not found in trace",
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertTraceCount:
		if n := countTrace(result.Trace, a); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s steps with case %s", a.Count, a.Op, caseOrAny(a.Case)),
				Actual:   fmt.Sprintf("%d steps", n),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertEntry(a Assertion, entries map[string]*apd.Decimal) error {
	v, ok := entries[a.Name]
	return assertPresence(a, v, ok)
}

func assertPresence(a Assertion, v *apd.Decimal, ok bool) error {
	if a.Absent {
		if ok {
			return &AssertionError{Type: a.Type, Expected: presenceText(a.Name, false), Actual: num.String(v)}
		}
		return nil
	}
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %s", a.Name, a.Value), Actual: "absent"}
	}
	return compareDecimal(a.Type+" "+a.Name, a.Value, v)
}

// compareDecimal compares numerically, so "1000" matches "1000.00".
func compareDecimal(label, want string, got *apd.Decimal) error {
	w, err := num.Parse(want)
	if err != nil {
		return fmt.Errorf("%s: expected value %q is not a decimal", label, want)
	}
	if got == nil || w.Cmp(got) != 0 {
		return &AssertionError{Type: label, Expected: want, Actual: num.String(got)}
	}
	return nil
}

func assertEvent(result *Result, a Assertion) error {
	var found *event.Event
	for _, ev := range result.Events {
		if ev.ID == a.ID {
			found = ev
			break
		}
	}
	if found == nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("event #%d", a.ID), Actual: "not found"}
	}
	fields, err := found.ToMap()
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(a.Fields) {
		want := fmt.Sprint(a.Fields[key])
		got, ok := fields[key]
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("#%d %s = %s", a.ID, key, want), Actual: "field absent"}
		}
		if fmt.Sprint(got) != want {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("#%d %s = %s", a.ID, key, want), Actual: fmt.Sprint(got)}
		}
	}
	return nil
}

func countTrace(trace []TraceEvent, a Assertion) int {
	n := 0
	for _, ev := range trace {
		if ev.Op == a.Op && (a.Case == "" || ev.Case == a.Case) {
			n++
		}
	}
	return n
}

func caseOrAny(c string) string {
	if c == "" {
		return "any"
	}
	return c
}

func presenceText(name string, present bool) string {
	if present {
		return name + " present"
	}
	return name + " absent"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
