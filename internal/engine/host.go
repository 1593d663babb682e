package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MassSource supplies the raw mass for each tick.
type MassSource interface {
	Next(tick int64) float64
}

// Host wraps an Engine with the mutual exclusion it requires.
//
// Thread-safety model:
//   - Submit, SubmitToLane, SetLaneActive, SnapshotBacklog: safe from any goroutine
//   - Step: safe from any goroutine, but callers normally let Run own it
//   - Run: must be called from exactly ONE goroutine
//
// The lock is held for the whole of a Step, so a tick never observes a
// half-applied Submit and vice versa.
type Host struct {
	mu     sync.Mutex
	engine *Engine
	logger *zap.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the Host logger. Default: zap.NewNop().
func WithHostLogger(l *zap.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost takes ownership of e. Callers must not use e directly afterwards.
func NewHost(e *Engine, opts ...HostOption) *Host {
	h := &Host{engine: e, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Submit is Engine.Submit under the host lock.
func (h *Host) Submit(category string, item WorkItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Submit(category, item)
}

// SubmitToLane is Engine.SubmitToLane under the host lock.
func (h *Host) SubmitToLane(category string, hint int, item WorkItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.SubmitToLane(category, hint, item)
}

// SetLaneActive is Engine.SetLaneActive under the host lock.
func (h *Host) SetLaneActive(category string, lane int, active bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.SetLaneActive(category, lane, active)
}

// Step is Engine.Step under the host lock.
func (h *Host) Step(rawMass float64) (*TickResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Step(rawMass)
}

// SnapshotBacklog is Engine.SnapshotBacklog under the host lock.
func (h *Host) SnapshotBacklog() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.SnapshotBacklog()
}

// CategoryNames returns category names in declaration order.
// Topology is immutable, so no lock is needed.
func (h *Host) CategoryNames() []string {
	return h.engine.CategoryNames()
}

// Tick returns the index of the last completed tick.
func (h *Host) Tick() int64 {
	return h.engine.clock.Current()
}

// RunOptions configures Host.Run.
type RunOptions struct {
	// Interval between ticks. Zero or negative steps back to back.
	Interval time.Duration

	// MaxTicks stops the loop after that many ticks. Zero runs until the
	// context is cancelled.
	MaxTicks int64

	// Source supplies raw mass. Required.
	Source MassSource

	// OnTick receives each result outside the host lock. A non-nil error
	// stops the loop and is returned from Run.
	OnTick func(*TickResult) error
}

// ErrNoSource is returned by Run when RunOptions.Source is nil.
var ErrNoSource = errors.New("run: mass source is required")

// Run is the single consuming loop. It returns ctx.Err() on cancellation,
// nil after MaxTicks ticks, or the first Step or OnTick error.
func (h *Host) Run(ctx context.Context, opts RunOptions) error {
	if opts.Source == nil {
		return ErrNoSource
	}

	h.logger.Info("host run starting",
		zap.Duration("interval", opts.Interval),
		zap.Int64("max_ticks", opts.MaxTicks),
	)

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var done int64
	for opts.MaxTicks == 0 || done < opts.MaxTicks {
		if err := ctx.Err(); err != nil {
			h.logger.Info("host run stopping: context cancelled", zap.Int64("ticks", done))
			return err
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				h.logger.Info("host run stopping: context cancelled", zap.Int64("ticks", done))
				return ctx.Err()
			case <-tick:
			}
		}

		result, err := h.stepFrom(opts.Source)
		if err != nil {
			return fmt.Errorf("tick %d: %w", h.Tick()+1, err)
		}
		done++

		if opts.OnTick != nil {
			if err := opts.OnTick(result); err != nil {
				return fmt.Errorf("tick %d handler: %w", result.TickIndex, err)
			}
		}
	}

	h.logger.Info("host run finished", zap.Int64("ticks", done))
	return nil
}

// stepFrom reads the next mass and steps under one lock acquisition so the
// tick index handed to the source is the one Step produces.
func (h *Host) stepFrom(src MassSource) (*TickResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mass := src.Next(h.engine.clock.Current() + 1)
	return h.engine.Step(mass)
}
