package harness

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/quadlane/internal/engine"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(s, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"backpressure", "lane_routing", "redistribute", "starvation", "invalid_mass"} {
		t.Run(name, func(t *testing.T) {
			result := loadAndRun(t, "testdata/scenarios/"+name+".yaml")
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Backpressure_Trace(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/backpressure.yaml")

	require.Len(t, result.Trace, 5)
	require.Len(t, result.Ticks, 5)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Tick)
		assert.Equal(t, 1000.0, ev.Mass)
		assert.Len(t, ev.Fingerprint, 64)
	}
	assert.Equal(t, map[string]int{"Cost": 4, "Revenue": 0, "Overhead": 2, "Growth": 0}, result.Trace[0].Scheduled)
	assert.Equal(t, map[string]int{"Cost": 20, "Revenue": 30, "Overhead": 8, "Growth": 26}, result.Backlog)
}

func TestRun_InvalidMassKeepsTickIndex(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/invalid_mass.yaml")

	require.Len(t, result.Trace, 2)
	assert.Equal(t, int64(1), result.Trace[0].Tick)
	assert.Equal(t, int64(2), result.Trace[1].Tick)
}

func TestRun_Redistribute_QumaFingerprints(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/redistribute.yaml")

	for _, fp := range result.Fingerprints() {
		require.Len(t, fp, 64)
		for _, c := range fp {
			assert.Contains(t, "QXMHAVERSOLIGTUN", string(c))
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/backpressure.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Trace, second.Trace); diff != "" {
		t.Fatalf("trace differs between runs (-first +second):\n%s", diff)
	}
}

func TestRun_ExpectationMismatchIsReported(t *testing.T) {
	s := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Submissions: []Submission{{Category: "Cost", Count: 8}},
		Ticks: []TickStep{{
			Mass: 1000,
			Expect: &TickExpect{
				Scheduled: map[string]int{"Cost": 3, "Nope": 1},
				Backlog:   map[string]int{"Cost": 0},
				Items:     []string{"Cost-0001"},
			},
		}},
	}
	require.NoError(t, validateScenario(s))

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "scheduled Cost = 4, want 3")
	assert.Contains(t, result.Errors[1], `unknown category "Nope"`)
	assert.Contains(t, result.Errors[2], "backlog Cost = 4, want 0")
	assert.Contains(t, result.Errors[3], "items [Cost-0001 Cost-0002 Cost-0003 Cost-0004], want [Cost-0001]")
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	s := &Scenario{
		Name:        "no_error",
		Description: "valid mass expected to fail",
		Ticks: []TickStep{{
			Mass:   10,
			Expect: &TickExpect{Error: string(engine.ErrCodeInvalidMass)},
		}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error INVALID_MASS, tick 1 succeeded")
	assert.Len(t, result.Trace, 1)
}

func TestRun_WrongErrorCode(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_code",
		Description: "negative mass expected to be a lane error",
		Ticks: []TickStep{{
			Mass:   -1,
			Expect: &TickExpect{Error: string(engine.ErrCodeLaneIndex)},
		}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error LANE_INDEX")
}

func TestRun_UnexpectedStepFailureIsAnError(t *testing.T) {
	s := &Scenario{
		Name:        "bad_mass",
		Description: "negative mass without an error expectation",
		Ticks:       []TickStep{{Mass: -1}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.True(t, engine.IsConfigurationError(err))
}

func TestRun_UnknownCategory(t *testing.T) {
	s := &Scenario{
		Name:        "unknown",
		Description: "submission to a missing category",
		Submissions: []Submission{{Category: "Marketing", Count: 1}},
		Ticks:       []TickStep{{Mass: 1}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.True(t, engine.IsUnknownCategoryError(err))
}

func TestRun_DuplicateItemIDs(t *testing.T) {
	s := &Scenario{
		Name:        "dupes",
		Description: "two categories sharing a prefix",
		Submissions: []Submission{
			{Category: "Cost", Count: 1, Prefix: "x"},
			{Category: "Growth", Count: 1, Prefix: "x"},
		},
		Ticks: []TickStep{{Mass: 1}},
	}

	// A shared prefix continues numbering, so IDs stay unique.
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, 2, result.Backlog["Cost"]+result.Backlog["Growth"]+len(result.Ticks[0].Scheduled))
}

func TestRun_BadInlineConfig(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad
description: bias length mismatch
config:
  categories:
    - name: A
    - name: B
  bias: [1, 2, 3]
ticks:
  - mass: 1
`), "")
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeBiasLength, engine.ConfigErrorCodeOf(err))
}
