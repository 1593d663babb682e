package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// It serializes through ir.MarshalCanonical for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonical converts the snapshot to an IR object. Each tick carries its
// input mass, fingerprint and full canonical projection.
func (s *TraceSnapshot) toCanonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Result.Ticks))
	for i, tick := range s.Result.Ticks {
		ev := s.Result.Trace[i]
		trace[i] = ir.IRObject{
			"input":       ir.Micro(ev.Mass),
			"fingerprint": ir.IRString(ev.Fingerprint),
			"result":      fingerprint.TickValue(tick),
		}
	}
	return ir.IRObject{
		"scenario": ir.IRString(s.ScenarioName),
		"trace":    trace,
	}
}

// MarshalTrace returns the canonical JSON form of a result's trace.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
