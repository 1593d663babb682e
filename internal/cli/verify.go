package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/quadlane/internal/harness"
	"github.com/roach88/quadlane/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// Divergence is one tick whose fingerprint differs from the recording.
type Divergence struct {
	Tick     int64  `json:"tick"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// VerifyResult holds the outcome of a verification.
type VerifyResult struct {
	RunID        string       `json:"run_id"`
	Scenario     string       `json:"scenario"`
	ConfigMatch  bool         `json:"config_match"`
	RecordedTick int          `json:"recorded_ticks"`
	ReplayedTick int          `json:"replayed_ticks"`
	Matched      int          `json:"matched"`
	Divergences  []Divergence `json:"divergences,omitempty"`
	Reproducible bool         `json:"reproducible"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <scenario>",
		Short: "Re-simulate a recorded run and compare fingerprints",
		Long: `Re-run a scenario and compare every tick fingerprint against a run
recorded with 'quadlane simulate --db'. The config digest of the scenario
must also match the digest stored with the run.

Exit codes:
  0 - Every fingerprint matches
  1 - Divergence detected (different config, tick count or fingerprint)
  2 - Command error (database or run not found, bad scenario)

Examples:
  quadlane verify --db ./audit.db --run 0192f3c4-... ./scenarios/backpressure.yaml
  quadlane verify --db ./audit.db --run 0192f3c4-... ./scenarios/backpressure.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to verify (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runVerify(opts *VerifyOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	log := opts.logger()

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeStore, fmt.Sprintf("run %s not found", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	recorded, err := st.ReadTicks(ctx, run.ID)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}

	scenario, result, err := simulateScenario(path, log)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}
	cfg, err := scenario.ResolveConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to resolve config", err)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest config", err)
	}

	out := compareRun(recorded, result.Trace)
	out.RunID = run.ID
	out.Scenario = scenario.Name
	out.ConfigMatch = digest == run.ConfigDigest
	out.Reproducible = out.Reproducible && out.ConfigMatch

	log.Info("verify finished",
		zap.String("run_id", run.ID),
		zap.Int("matched", out.Matched),
		zap.Int("divergences", len(out.Divergences)),
		zap.Bool("config_match", out.ConfigMatch),
	)

	if formatter.IsJSON() {
		if !out.Reproducible {
			if err := formatter.Failure(ErrCodeDiverged, "run is not reproducible", out); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "divergence detected")
		}
		return formatter.Success(out)
	}

	printVerify(formatter, out)
	if !out.Reproducible {
		return NewExitError(ExitFailure, "divergence detected")
	}
	return nil
}

// compareRun lines recorded ticks up with replayed ones by tick index.
func compareRun(recorded []store.TickRecord, replayed []harness.TraceEvent) VerifyResult {
	out := VerifyResult{RecordedTick: len(recorded), ReplayedTick: len(replayed)}

	byTick := make(map[int64]string, len(replayed))
	for _, ev := range replayed {
		byTick[ev.Tick] = ev.Fingerprint
	}
	for _, rec := range recorded {
		fp, ok := byTick[rec.Tick]
		if ok && fp == rec.Fingerprint {
			out.Matched++
			continue
		}
		out.Divergences = append(out.Divergences, Divergence{Tick: rec.Tick, Recorded: rec.Fingerprint, Replayed: fp})
	}
	out.Reproducible = len(out.Divergences) == 0 && len(recorded) == len(replayed)
	return out
}

func printVerify(f *OutputFormatter, out VerifyResult) {
	f.Printf("Run %s (scenario %s)\n", out.RunID, out.Scenario)
	if !out.ConfigMatch {
		f.Printf("  config digest differs from the recorded run\n")
	}
	if out.RecordedTick != out.ReplayedTick {
		f.Printf("  recorded %d ticks, replayed %d\n", out.RecordedTick, out.ReplayedTick)
	}
	for _, d := range out.Divergences {
		replayed := d.Replayed
		if replayed == "" {
			replayed = "(missing)"
		}
		f.Printf("  tick %d: recorded %s, replayed %s\n", d.Tick, d.Recorded, replayed)
	}
	if out.Reproducible {
		f.Printf("✓ %d/%d ticks match\n", out.Matched, out.RecordedTick)
		return
	}
	f.Printf("✗ Divergence detected: %d/%d ticks match\n", out.Matched, out.RecordedTick)
}
