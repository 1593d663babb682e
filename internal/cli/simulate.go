package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/harness"
	"github.com/roach88/quadlane/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Label    string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	RunIDs store.RunIDGenerator
}

// TickSummary is one line of simulate output.
type TickSummary struct {
	Tick        int64   `json:"tick"`
	Mass        float64 `json:"mass"`
	Angle       float64 `json:"angle"`
	Modifier    float64 `json:"modifier"`
	Scheduled   int     `json:"scheduled"`
	Backlog     int     `json:"backlog"`
	Fingerprint string  `json:"fingerprint"`
}

// SimulateResult holds the outcome of a simulation.
type SimulateResult struct {
	Scenario string         `json:"scenario"`
	Pass     bool           `json:"pass"`
	Errors   []string       `json:"errors,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Ticks    []TickSummary  `json:"ticks"`
	Backlog  map[string]int `json:"backlog"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario>",
		Short: "Run a scenario deterministically and print each tick",
		Long: `Run a scenario file against a fresh engine and print every tick with
its fingerprint. With --db the run is appended to the audit log so it can
later be checked with 'quadlane verify'.

Exit codes:
  0 - Simulation ran and every expectation held
  1 - An expectation or assertion failed
  2 - Command error (bad scenario, unreadable database)

Examples:
  quadlane simulate ./scenarios/backpressure.yaml
  quadlane simulate ./scenarios/backpressure.yaml --db ./audit.db --label nightly`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite audit log")
	cmd.Flags().StringVar(&opts.Label, "label", "", "run label (defaults to the scenario name)")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	log := opts.logger()

	scenario, result, err := simulateScenario(path, log)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}

	out := SimulateResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Ticks:    summarizeTicks(result),
		Backlog:  result.Backlog,
	}

	if opts.Database != "" {
		label := opts.Label
		if label == "" {
			label = scenario.Name
		}
		gen := opts.RunIDs
		if gen == nil {
			gen = store.UUIDv7Generator{}
		}
		run, err := recordRun(cmd.Context(), opts.Database, gen, label, scenario, result)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		out.RunID = run.ID
		log.Info("run recorded",
			zap.String("run_id", run.ID),
			zap.Int64("seq", run.Seq),
			zap.Int("ticks", len(result.Ticks)),
		)
	}

	if formatter.IsJSON() {
		if !out.Pass {
			if err := formatter.Failure(ErrCodeTestFailed, "scenario expectations failed", out); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
		}
		return formatter.Success(out)
	}

	printSimulation(formatter, out)
	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// simulateScenario loads and runs one scenario file.
func simulateScenario(path string, log *zap.Logger) (*harness.Scenario, *harness.Result, error) {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := harness.Run(scenario, harness.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return scenario, result, nil
}

func summarizeTicks(result *harness.Result) []TickSummary {
	out := make([]TickSummary, len(result.Ticks))
	for i, tick := range result.Ticks {
		out[i] = TickSummary{
			Tick:        tick.TickIndex,
			Mass:        result.Trace[i].Mass,
			Angle:       tick.Angle,
			Modifier:    tick.RotationModifier,
			Scheduled:   len(tick.Scheduled),
			Backlog:     tick.TotalBacklog(),
			Fingerprint: result.Trace[i].Fingerprint,
		}
	}
	return out
}

// recordRun appends a finished simulation to the audit log.
func recordRun(ctx context.Context, dbPath string, gen store.RunIDGenerator, label string,
	scenario *harness.Scenario, result *harness.Result) (store.Run, error) {
	cfg, err := scenario.ResolveConfig()
	if err != nil {
		return store.Run{}, err
	}
	digest, err := cfg.Digest()
	if err != nil {
		return store.Run{}, err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return store.Run{}, err
	}
	defer st.Close()

	run, err := st.CreateRun(ctx, gen, label, digest)
	if err != nil {
		return store.Run{}, err
	}
	recs, err := tickRecords(run.ID, result.Ticks, result.Fingerprints())
	if err != nil {
		return store.Run{}, err
	}
	if err := st.WriteTicks(ctx, recs); err != nil {
		return store.Run{}, err
	}
	return run, nil
}

func tickRecords(runID string, ticks []*engine.TickResult, fps []string) ([]store.TickRecord, error) {
	recs := make([]store.TickRecord, len(ticks))
	for i, tick := range ticks {
		rec, err := store.NewTickRecord(runID, tick, fps[i])
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

func printSimulation(f *OutputFormatter, out SimulateResult) {
	f.Printf("Scenario %s\n", out.Scenario)
	f.Printf("%5s  %10s  %10s  %8s  %9s  %7s  %s\n",
		"tick", "mass", "angle", "modifier", "scheduled", "backlog", "fingerprint")
	for _, t := range out.Ticks {
		f.Printf("%5d  %10.3f  %10.6f  %8.6f  %9d  %7d  %s\n",
			t.Tick, t.Mass, t.Angle, t.Modifier, t.Scheduled, t.Backlog, t.Fingerprint)
	}
	f.Printf("Final backlog: %s\n", formatBacklog(out.Backlog))
	if out.RunID != "" {
		f.Printf("Recorded run %s\n", out.RunID)
	}
	if out.Pass {
		f.Printf("✓ %s passed\n", out.Scenario)
		return
	}
	f.Printf("✗ %s failed\n", out.Scenario)
	for _, e := range out.Errors {
		f.Printf("  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

// formatBacklog renders a backlog map with sorted keys.
func formatBacklog(m map[string]int) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, m[name])
	}
	return strings.Join(parts, " ")
}
