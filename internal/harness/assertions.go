package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionContext carries run state that assertions need beyond the trace.
type AssertionContext struct {
	// Order maps item ID to its submission sequence number.
	Order map[string]int64
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
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
			fmt.Fprintf(&buf, "  [tick %d] scheduled %s backlog %s\n",
				ev.Tick, formatCounts(ev.Scheduled), formatCounts(ev.Backlog))
		}
	}
	return buf.String()
}

// assertScheduledTotal checks the number of items dequeued over the run.
func assertScheduledTotal(result *Result, assertion Assertion) error {
	total := 0
	for _, tick := range result.Ticks {
		if assertion.Category == "" {
			total += len(tick.Scheduled)
			continue
		}
		total += len(tick.ScheduledFor(assertion.Category))
	}

	if total == *assertion.Count {
		return nil
	}
	scope := "all categories"
	if assertion.Category != "" {
		scope = assertion.Category
	}
	return &AssertionError{
		Type:     AssertScheduledTotal,
		Expected: fmt.Sprintf("%d items scheduled from %s", *assertion.Count, scope),
		Actual:   fmt.Sprintf("%d items", total),
		Trace:    result.Trace,
	}
}

// assertFinalBacklog checks the backlog left after the last tick.
// Only the listed categories are compared.
func assertFinalBacklog(result *Result, assertion Assertion) error {
	var mismatches []string
	for _, name := range sortedNames(assertion.Expect) {
		want := assertion.Expect[name]
		got, ok := result.Backlog[name]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown category", name))
			continue
		}
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s: %d", name, got))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalBacklog,
		Expected: formatCounts(assertion.Expect),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    result.Trace,
	}
}

// assertCapacityRespected checks that no category ever pulled more weight
// than its capacity in a single tick.
func assertCapacityRespected(result *Result) error {
	for _, tick := range result.Ticks {
		for _, c := range tick.Categories {
			if c.Pulled > c.Capacity {
				return &AssertionError{
					Type:     AssertCapacityRespected,
					Expected: fmt.Sprintf("pulled <= capacity %.6f for %s", c.Capacity, c.Name),
					Actual:   fmt.Sprintf("pulled %.6f at tick %d", c.Pulled, tick.TickIndex),
					Trace:    result.Trace,
				}
			}
		}
	}
	return nil
}

// assertFIFO checks that every lane dequeued its items in submission order.
func assertFIFO(result *Result, actx *AssertionContext) error {
	last := make(map[string]int64)
	for _, tick := range result.Ticks {
		for _, s := range tick.Scheduled {
			seq, ok := actx.Order[s.Item.ID]
			if !ok {
				return fmt.Errorf("fifo: item %s was never submitted", s.Item.ID)
			}
			key := s.Category + "/" + s.Lane
			if prev, seen := last[key]; seen && seq < prev {
				return &AssertionError{
					Type:     AssertFIFO,
					Expected: fmt.Sprintf("lane %s dequeues in submission order", key),
					Actual:   fmt.Sprintf("item %s (seq %d) after seq %d at tick %d", s.Item.ID, seq, prev, tick.TickIndex),
					Trace:    result.Trace,
				}
			}
			last[key] = seq
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns error messages.
// Returns empty slice if all assertions pass.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertScheduledTotal:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: scheduled_total requires count", i)
			} else {
				err = assertScheduledTotal(result, assertion)
			}
		case AssertFinalBacklog:
			err = assertFinalBacklog(result, assertion)
		case AssertCapacityRespected:
			err = assertCapacityRespected(result)
		case AssertFIFO:
			if actx == nil || actx.Order == nil {
				err = fmt.Errorf("assertion[%d]: fifo requires submission order", i)
			} else {
				err = assertFIFO(result, actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func sortedNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// formatCounts renders a count map deterministically, e.g. "Cost:4 Growth:0".
func formatCounts(m map[string]int) string {
	parts := make([]string, 0, len(m))
	for _, name := range sortedNames(m) {
		parts = append(parts, fmt.Sprintf("%s:%d", name, m[name]))
	}
	return strings.Join(parts, " ")
}
