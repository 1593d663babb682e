package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/quadlane/internal/config"
	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/metrics"
	"github.com/roach88/quadlane/internal/store"
)

// producers submit synthetic items round-robin across categories.
type producers struct {
	host       *engine.Host
	categories []string
	submitted  atomic.Int64
}

func (p *producers) run(ctx context.Context, id int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		category := p.categories[(id+seq)%len(p.categories)]
		item := engine.NewWorkItem(fmt.Sprintf("p%d-%06d", id, seq))
		if err := p.host.Submit(category, item); err != nil {
			return fmt.Errorf("producer %d: %w", id, err)
		}
		p.submitted.Add(1)
	}
}

// tickRecorder is the host OnTick handler. It seals each tick, feeds the
// metrics recorder and appends to the audit log when one is open. It is
// only called from the host loop goroutine.
type tickRecorder struct {
	ctx     context.Context
	sealer  fingerprint.Sealer
	metrics *metrics.Recorder
	store   *store.Store
	runID   string

	ticks     int64
	scheduled int
	last      string
}

func newTickRecorder(ctx context.Context, opts *RunOptions, cfg *config.Config, sealer fingerprint.Sealer) (*tickRecorder, error) {
	rec := &tickRecorder{ctx: ctx, sealer: sealer}
	if opts.Database == "" {
		return rec, nil
	}

	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, err
	}
	gen := opts.RunIDs
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	run, err := st.CreateRun(ctx, gen, opts.Label, digest)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	rec.store = st
	rec.runID = run.ID
	return rec, nil
}

func (r *tickRecorder) onTick(result *engine.TickResult) error {
	fp, err := r.sealer.Fingerprint(result)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.Observe(result)
	}
	if r.store != nil {
		rec, err := store.NewTickRecord(r.runID, result, fp)
		if err != nil {
			return err
		}
		// The audit write must not be lost to the shutdown signal that
		// ends the loop, so it ignores cancellation.
		if err := r.store.WriteTick(context.WithoutCancel(r.ctx), rec); err != nil {
			return err
		}
	}
	r.ticks++
	r.scheduled += len(result.Scheduled)
	r.last = fp
	return nil
}

// Close releases the audit log, if any.
func (r *tickRecorder) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
