package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quadlane/internal/config"
	"github.com/roach88/quadlane/internal/engine"
)

// ValidationIssue is one problem found in a config.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ConfigSummary describes a valid config.
type ConfigSummary struct {
	Categories       []string  `json:"categories"`
	LanesPerCategory int       `json:"lanes_per_category"`
	Ratio            float64   `json:"ratio"`
	Weights          []float64 `json:"weights"`
	ResidualPolicy   string    `json:"residual_policy"`
	Encoding         string    `json:"encoding"`
	Digest           string    `json:"digest"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Config *ConfigSummary    `json:"config,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a scheduler config",
		Long: `Load a .cue, .yaml or .toml config, check it against the schema and
build a throwaway engine from it.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (schema or semantic errors)
  2 - Command error (file not found, unsupported extension)

Examples:
  quadlane validate ./quadlane.cue
  quadlane validate ./quadlane.toml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(path)
	if err != nil {
		issue, code := issueFromError(err)
		if code == ExitCommandError {
			_ = formatter.Error(issue.Code, issue.Message, nil)
			return WrapExitError(ExitCommandError, "cannot load config", err)
		}
		return outputValidationIssues(formatter, []ValidationIssue{issue})
	}

	summary, err := summarize(cfg)
	if err != nil {
		issue, _ := issueFromError(err)
		return outputValidationIssues(formatter, []ValidationIssue{issue})
	}
	formatter.VerboseLog("config %s digest %s", path, summary.Digest)

	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Config: summary})
	}
	fmt.Fprintf(formatter.Writer, "✓ Config valid: %d categories x %d lanes, ratio %g, residual %s\n",
		len(summary.Categories), summary.LanesPerCategory, summary.Ratio, summary.ResidualPolicy)
	fmt.Fprintf(formatter.Writer, "  digest %s\n", summary.Digest)
	return nil
}

// summarize builds the engine once more to report the effective weights.
func summarize(cfg *config.Config) (*ConfigSummary, error) {
	eng, err := cfg.NewEngine()
	if err != nil {
		return nil, err
	}
	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}
	return &ConfigSummary{
		Categories:       eng.CategoryNames(),
		LanesPerCategory: eng.LanesPerCategory(),
		Ratio:            cfg.Ratio,
		Weights:          eng.Weights(),
		ResidualPolicy:   cfg.Residual.Policy,
		Encoding:         cfg.Fingerprint.Encoding,
		Digest:           digest,
	}, nil
}

// issueFromError maps load and configuration errors to an issue and the
// exit code they deserve.
func issueFromError(err error) (ValidationIssue, int) {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
		switch loadErr.Code {
		case config.ErrCodeNotFound, config.ErrCodeUnsupported:
			return issue, ExitCommandError
		}
		return issue, ExitFailure
	}

	var cfgErr *engine.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ValidationIssue{Code: string(cfgErr.Code), Field: cfgErr.Field, Message: cfgErr.Error()}, ExitFailure
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}, ExitFailure
}

// outputValidationIssues reports an invalid config.
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.IsJSON() {
		if err := formatter.Failure(issues[0].Code, issues[0].Message,
			ValidationResult{Valid: false, Errors: issues}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s (%s): %s\n\n", issue.Code, issue.Field, issue.Message)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return exitErr
}
