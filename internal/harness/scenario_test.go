package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Backpressure(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/backpressure.yaml")
	require.NoError(t, err)

	assert.Equal(t, "backpressure", s.Name)
	assert.Len(t, s.Submissions, 4)
	assert.Len(t, s.Ticks, 3)
	assert.Equal(t, 3, s.Ticks[2].Repeat)
	require.NotNil(t, s.Ticks[0].Expect)
	assert.Equal(t, 4, s.Ticks[0].Expect.Scheduled["Cost"])
	assert.Len(t, s.Assertions, 5)
	assert.Empty(t, s.ConfigFile)
	assert.False(t, s.hasInlineConfig())
}

func TestLoadScenario_ResolvesConfigFileRelativeToScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/redistribute.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "configs", "redistribute.yaml"), s.ConfigFile)

	cfg, err := s.ResolveConfig()
	require.NoError(t, err)
	assert.Equal(t, "redistribute", cfg.Residual.Policy)
	assert.Equal(t, "quma", cfg.Fingerprint.Encoding)
}

func TestLoadScenario_InlineConfig(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lane_routing.yaml")
	require.NoError(t, err)
	require.True(t, s.hasInlineConfig())

	cfg, err := s.ResolveConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 2)
	assert.Equal(t, "Alpha", cfg.Categories[0].Name)
	assert.Equal(t, 4, cfg.LanesPerCategory)
	assert.Equal(t, 0.25, cfg.CapacityFloor)
	// Unset fields take their defaults.
	assert.Equal(t, "OCTUPQ", cfg.Fingerprint.Salt)
}

func TestLoadScenario_DefaultConfig(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nticks:\n  - mass: 1\n"), "")
	require.NoError(t, err)

	cfg, err := s.ResolveConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Categories, 4)
	assert.Equal(t, 8, cfg.LanesPerCategory)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"unknown_field.yaml", "field tick not found"},
		{"both_configs.yaml", "mutually exclusive"},
		{"no_ticks.yaml", "ticks list is required"},
		{"bad_assertion.yaml", "count is required for scheduled_total"},
		{"error_with_repeat.yaml", "error requires a single tick"},
		{"missing_config_file.yaml", "config file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := LoadScenario(filepath.Join("testdata", "invalid", tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario_Submissions(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Ticks:       []TickStep{{Mass: 1}},
		}
	}

	s := base()
	s.Submissions = []Submission{{Count: 1}}
	assert.ErrorContains(t, validateScenario(s), "submissions[0]: category is required")

	s = base()
	s.Submissions = []Submission{{Category: "Cost"}}
	assert.ErrorContains(t, validateScenario(s), "count must be >= 1")

	s = base()
	s.Ticks[0].Submit = []Submission{{Category: "Cost", Count: 0}}
	assert.ErrorContains(t, validateScenario(s), "ticks[0].submit[0]")

	s = base()
	s.Ticks[0].Repeat = -1
	assert.ErrorContains(t, validateScenario(s), "repeat must be >= 0")

	s = base()
	s.Ticks[0].Lanes = []LaneToggle{{Lane: 1}}
	assert.ErrorContains(t, validateScenario(s), "ticks[0].lanes[0]: category is required")

	s = base()
	s.Ticks[0].Expect = &TickExpect{Error: "INVALID_MASS", Items: []string{"x"}}
	assert.ErrorContains(t, validateScenario(s), "cannot be combined")
}

func TestValidateAssertion(t *testing.T) {
	count := 1
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "trace_order"}, "unknown assertion type"},
		{"scheduled_total ok", Assertion{Type: AssertScheduledTotal, Count: &count}, ""},
		{"final_backlog empty", Assertion{Type: AssertFinalBacklog}, "expect map is required"},
		{"final_backlog ok", Assertion{Type: AssertFinalBacklog, Expect: map[string]int{"Cost": 1}}, ""},
		{"capacity", Assertion{Type: AssertCapacityRespected}, ""},
		{"fifo", Assertion{Type: AssertFIFO}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.a)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
