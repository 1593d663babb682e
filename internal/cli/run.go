package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/quadlane/internal/config"
	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/feed"
	"github.com/roach88/quadlane/internal/metrics"
	"github.com/roach88/quadlane/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval        time.Duration
	Ticks           int64
	Mass            string
	Producers       int
	ProduceInterval time.Duration
	MetricsAddr     string
	Database        string
	Label           string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	RunIDs store.RunIDGenerator

	// onListen is called with the metrics listener address once it is bound.
	onListen func(addr string)
}

// RunSummary is printed when the live loop stops.
type RunSummary struct {
	Ticks     int64          `json:"ticks"`
	Scheduled int            `json:"scheduled"`
	Submitted int64          `json:"submitted"`
	Backlog   map[string]int `json:"backlog"`
	RunID     string         `json:"run_id,omitempty"`
	Last      string         `json:"last_fingerprint,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Drive the scheduler in real time",
		Long: `Build an engine from a config and tick it on a wall-clock interval.

Producer goroutines submit synthetic work items round-robin across the
categories while the host loop steps. The loop stops after --ticks ticks,
or on SIGINT/SIGTERM when --ticks is 0. With --metrics-addr the tick
results are exported on /metrics; with --db every tick is appended to the
audit log.

Mass feeds:
  1000                constant
  seq:1000,500,0      cycled sequence
  noise:1000,50,42    base, jitter, seed

Examples:
  quadlane run ./quadlane.cue --ticks 100 --interval 10ms
  quadlane run ./quadlane.cue --producers 4 --metrics-addr :9090
  quadlane run ./quadlane.toml --mass noise:1000,50,7 --db ./audit.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "time between ticks")
	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.Mass, "mass", "1000", "raw mass feed")
	cmd.Flags().IntVar(&opts.Producers, "producers", 1, "number of synthetic producers")
	cmd.Flags().DurationVar(&opts.ProduceInterval, "produce-interval", 10*time.Millisecond, "time between submissions per producer")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record ticks in this SQLite audit log")
	cmd.Flags().StringVar(&opts.Label, "label", "live", "run label when recording")

	return cmd
}

func runLive(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	log := opts.logger()

	if opts.Producers < 0 {
		return NewExitError(ExitCommandError, "--producers must be >= 0")
	}
	if opts.Producers > 0 && opts.ProduceInterval <= 0 {
		return NewExitError(ExitCommandError, "--produce-interval must be positive")
	}
	if opts.Ticks < 0 {
		return NewExitError(ExitCommandError, "--ticks must be >= 0")
	}
	source, err := feed.Parse(opts.Mass)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --mass", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		issue, _ := issueFromError(err)
		_ = formatter.Error(issue.Code, issue.Message, nil)
		return WrapExitError(ExitCommandError, "cannot load config", err)
	}
	eng, err := cfg.NewEngine(engine.WithLogger(log))
	if err != nil {
		issue, _ := issueFromError(err)
		_ = formatter.Error(issue.Code, issue.Message, nil)
		return WrapExitError(ExitCommandError, "cannot build engine", err)
	}
	sealer, err := cfg.Sealer()
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot build sealer", err)
	}
	host := engine.NewHost(eng, engine.WithHostLogger(log))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := newTickRecorder(ctx, opts, cfg, sealer)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot open audit log", err)
	}
	defer rec.Close()

	reg := prometheus.NewRegistry()
	metricsRec, err := metrics.NewRecorder(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot register metrics", err)
	}
	rec.metrics = metricsRec

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if opts.MetricsAddr != "" {
		if err := serveMetrics(gctx, g, opts, reg, log); err != nil {
			return WrapExitError(ExitCommandError, "cannot serve metrics", err)
		}
	}

	prod := &producers{host: host, categories: host.CategoryNames()}
	for i := 0; i < opts.Producers; i++ {
		id := i
		g.Go(func() error {
			return prod.run(gctx, id, opts.ProduceInterval)
		})
	}

	g.Go(func() error {
		defer cancel()
		err := host.Run(gctx, engine.RunOptions{
			Interval: opts.Interval,
			MaxTicks: opts.Ticks,
			Source:   source,
			OnTick:   rec.onTick,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", err)
	}

	summary := RunSummary{
		Ticks:     rec.ticks,
		Scheduled: rec.scheduled,
		Submitted: prod.submitted.Load(),
		Backlog:   host.SnapshotBacklog(),
		RunID:     rec.runID,
		Last:      rec.last,
	}
	log.Info("run finished",
		zap.Int64("ticks", summary.Ticks),
		zap.Int("scheduled", summary.Scheduled),
		zap.Int64("submitted", summary.Submitted),
	)

	if formatter.IsJSON() {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "Ran %d ticks: %d scheduled, %d submitted\n",
		summary.Ticks, summary.Scheduled, summary.Submitted)
	fmt.Fprintf(formatter.Writer, "Backlog: %s\n", formatBacklog(summary.Backlog))
	if summary.Last != "" {
		fmt.Fprintf(formatter.Writer, "Last fingerprint: %s\n", summary.Last)
	}
	if summary.RunID != "" {
		fmt.Fprintf(formatter.Writer, "Recorded run %s\n", summary.RunID)
	}
	return nil
}

// serveMetrics binds the metrics listener synchronously so address errors
// surface before the loop starts, then serves until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, opts *RunOptions, reg *prometheus.Registry, log *zap.Logger) error {
	ln, err := net.Listen("tcp", opts.MetricsAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(ln.Addr().String())
	}
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}
