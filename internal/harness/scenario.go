package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quadlane/internal/config"
)

// Scenario defines a scheduler test scenario.
// A scenario builds an engine from a config, queues work, runs a sequence of
// ticks and asserts on the resulting trace and final backlog.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is an inline config in the YAML config format.
	// Mutually exclusive with ConfigFile. When both are empty the 4x8
	// reference topology is used.
	Config yaml.Node `yaml:"config,omitempty"`

	// ConfigFile is a path to a .cue, .yaml or .toml config.
	// Relative paths resolve against the scenario file's directory.
	ConfigFile string `yaml:"config_file,omitempty"`

	// Submissions are queued before the first tick.
	Submissions []Submission `yaml:"submissions,omitempty"`

	// Ticks is the sequence of Step calls.
	Ticks []TickStep `yaml:"ticks"`

	// Assertions validate the whole run.
	// Supported types: scheduled_total, final_backlog, capacity_respected, fifo
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Submission queues Count items onto one category.
type Submission struct {
	Category string `yaml:"category"`
	Count    int    `yaml:"count"`

	// Lane routes every item with SubmitToLane. Nil means shortest lane.
	Lane *int `yaml:"lane,omitempty"`

	// Weight defaults to engine.DefaultItemWeight.
	Weight *float64 `yaml:"weight,omitempty"`

	// Prefix names the items "<prefix>-0001", ... Defaults to the category
	// name. Numbering continues across submissions sharing a prefix.
	Prefix string `yaml:"prefix,omitempty"`
}

// LaneToggle activates or deactivates one lane.
type LaneToggle struct {
	Category string `yaml:"category"`
	Lane     int    `yaml:"lane"`
	Active   bool   `yaml:"active"`
}

// TickStep runs Repeat ticks with the same raw mass.
// Lanes and Submit are applied once, before the first of those ticks.
type TickStep struct {
	Mass   float64      `yaml:"mass"`
	Repeat int          `yaml:"repeat,omitempty"`
	Lanes  []LaneToggle `yaml:"lanes,omitempty"`
	Submit []Submission `yaml:"submit,omitempty"`

	// Expect is checked against the last tick of the step.
	Expect *TickExpect `yaml:"expect,omitempty"`
}

// TickExpect specifies the expected outcome of a tick.
type TickExpect struct {
	// Scheduled maps category name to the number of items dequeued.
	Scheduled map[string]int `yaml:"scheduled,omitempty"`

	// Backlog maps category name to items left after the tick.
	Backlog map[string]int `yaml:"backlog,omitempty"`

	// Items lists the dequeued item IDs in scheduling order.
	Items []string `yaml:"items,omitempty"`

	// Error is a configuration error code the step must fail with, for
	// example INVALID_MASS. A failing step records no tick.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the run as a whole.
type Assertion struct {
	// Type specifies the assertion type:
	// - "scheduled_total": items dequeued over the run, optionally per category
	// - "final_backlog": backlog per category after the last tick
	// - "capacity_respected": pulled weight never exceeds capacity
	// - "fifo": every lane dequeues in submission order
	Type string `yaml:"type"`

	// Category restricts scheduled_total to one category.
	Category string `yaml:"category,omitempty"`

	// Count is the expected total (used by scheduled_total).
	Count *int `yaml:"count,omitempty"`

	// Expect maps category name to expected backlog (used by final_backlog).
	// Categories not listed are not checked.
	Expect map[string]int `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertScheduledTotal    = "scheduled_total"
	AssertFinalBacklog      = "final_backlog"
	AssertCapacityRespected = "capacity_respected"
	AssertFIFO              = "fifo"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving config_file against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ConfigFile != "" && !filepath.IsAbs(scenario.ConfigFile) && baseDir != "" {
		scenario.ConfigFile = filepath.Join(baseDir, scenario.ConfigFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ResolveConfig returns the scenario's scheduler config.
func (s *Scenario) ResolveConfig() (*config.Config, error) {
	switch {
	case s.hasInlineConfig():
		data, err := yaml.Marshal(&s.Config)
		if err != nil {
			return nil, fmt.Errorf("inline config: %w", err)
		}
		return config.Parse(data, config.FormatYAML)
	case s.ConfigFile != "":
		return config.Load(s.ConfigFile)
	default:
		return config.Default(), nil
	}
}

func (s *Scenario) hasInlineConfig() bool {
	return s.Config.Kind != 0
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.hasInlineConfig() && s.ConfigFile != "" {
		return fmt.Errorf("config and config_file are mutually exclusive")
	}
	if s.ConfigFile != "" {
		if _, err := os.Stat(s.ConfigFile); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.ConfigFile)
		}
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}

	for i, sub := range s.Submissions {
		if err := validateSubmission(fmt.Sprintf("submissions[%d]", i), sub); err != nil {
			return err
		}
	}

	for i, step := range s.Ticks {
		if step.Repeat < 0 {
			return fmt.Errorf("ticks[%d]: repeat must be >= 0", i)
		}
		for j, sub := range step.Submit {
			if err := validateSubmission(fmt.Sprintf("ticks[%d].submit[%d]", i, j), sub); err != nil {
				return err
			}
		}
		for j, lt := range step.Lanes {
			if lt.Category == "" {
				return fmt.Errorf("ticks[%d].lanes[%d]: category is required", i, j)
			}
		}
		if ex := step.Expect; ex != nil && ex.Error != "" {
			if len(ex.Scheduled) > 0 || len(ex.Backlog) > 0 || len(ex.Items) > 0 {
				return fmt.Errorf("ticks[%d].expect: error cannot be combined with other expectations", i)
			}
			if step.Repeat > 1 {
				return fmt.Errorf("ticks[%d].expect: error requires a single tick", i)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateSubmission(where string, sub Submission) error {
	if sub.Category == "" {
		return fmt.Errorf("%s: category is required", where)
	}
	if sub.Count < 1 {
		return fmt.Errorf("%s: count must be >= 1", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertScheduledTotal:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for scheduled_total", index)
		}
	case AssertFinalBacklog:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect map is required for final_backlog", index)
		}
	case AssertCapacityRespected, AssertFIFO:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
