package harness

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/testutil"
)

// Harness is the scenario execution engine.
// It drives a real scheduler engine with deterministic item IDs.
type Harness struct {
	engine *engine.Engine
	sealer fingerprint.Fingerprinter
	logger *zap.Logger

	// ids holds one generator per item prefix.
	ids map[string]*testutil.SequentialIDs

	// order maps item ID to submission sequence, for the fifo assertion.
	order map[string]int64
	seq   int64
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each run builds a fresh engine from the scenario's config, so runs are
// isolated and repeatable. The returned error covers scenario problems
// (bad config, unknown category, unexpected step failure); expectation
// and assertion failures are reported in Result.Errors.
//
// Execution flow:
// 1. Resolve config and build the engine and fingerprinter
// 2. Queue the initial submissions
// 3. Run each tick step, checking its expectations
// 4. Evaluate the run-level assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: zap.NewNop(),
		ids:    make(map[string]*testutil.SequentialIDs),
		order:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(h)
	}

	cfg, err := scenario.ResolveConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config: %w", err)
	}
	eng, err := cfg.NewEngine(engine.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	sealer, err := cfg.Sealer()
	if err != nil {
		return nil, fmt.Errorf("failed to build fingerprinter: %w", err)
	}
	h.engine = eng
	h.sealer = sealer

	result := NewResult()
	if err := h.submitAll(scenario.Submissions); err != nil {
		return nil, fmt.Errorf("failed to queue submissions: %w", err)
	}
	if err := h.executeTicks(scenario.Ticks, result); err != nil {
		return nil, fmt.Errorf("failed to execute ticks: %w", err)
	}
	result.Backlog = eng.SnapshotBacklog()

	actx := &AssertionContext{Order: h.order}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeTicks runs every tick step in order.
func (h *Harness) executeTicks(steps []TickStep, result *Result) error {
	for i, step := range steps {
		for j, lt := range step.Lanes {
			if err := h.engine.SetLaneActive(lt.Category, lt.Lane, lt.Active); err != nil {
				return fmt.Errorf("ticks[%d].lanes[%d]: %w", i, j, err)
			}
		}
		if err := h.submitAll(step.Submit); err != nil {
			return fmt.Errorf("ticks[%d]: %w", i, err)
		}

		if step.Expect != nil && step.Expect.Error != "" {
			h.expectStepError(i, step, result)
			continue
		}

		repeat := max(step.Repeat, 1)
		var last *engine.TickResult
		for k := 0; k < repeat; k++ {
			tick, err := h.engine.Step(step.Mass)
			if err != nil {
				return fmt.Errorf("ticks[%d]: %w", i, err)
			}
			fp, err := h.sealer.Fingerprint(tick)
			if err != nil {
				return fmt.Errorf("ticks[%d]: %w", i, err)
			}
			result.AddTick(tick, step.Mass, fp)
			last = tick

			h.logger.Debug("tick completed",
				zap.Int("step", i),
				zap.Int64("tick", tick.TickIndex),
				zap.Int("scheduled", len(tick.Scheduled)),
				zap.String("fingerprint", fp),
			)
		}

		if step.Expect != nil {
			for _, msg := range checkExpect(i, last, step.Expect) {
				result.AddError(msg)
			}
		}
	}
	return nil
}

// expectStepError runs a step that must be rejected.
func (h *Harness) expectStepError(index int, step TickStep, result *Result) {
	want := engine.ConfigErrorCode(step.Expect.Error)
	before := h.engine.Tick()

	tick, err := h.engine.Step(step.Mass)
	switch {
	case err == nil:
		result.AddTick(tick, step.Mass, "")
		result.AddError(fmt.Sprintf("ticks[%d]: expected error %s, tick %d succeeded", index, want, tick.TickIndex))
	case engine.ConfigErrorCodeOf(err) != want:
		result.AddError(fmt.Sprintf("ticks[%d]: expected error %s, got %v", index, want, err))
	case h.engine.Tick() != before:
		result.AddError(fmt.Sprintf("ticks[%d]: rejected step advanced tick from %d to %d", index, before, h.engine.Tick()))
	}
}

// checkExpect compares one tick against its expectations.
func checkExpect(index int, tick *engine.TickResult, ex *TickExpect) []string {
	var errs []string
	for _, name := range sortedNames(ex.Scheduled) {
		want := ex.Scheduled[name]
		c, ok := tick.Category(name)
		if !ok {
			errs = append(errs, fmt.Sprintf("ticks[%d]: unknown category %q in expect.scheduled", index, name))
			continue
		}
		if c.Scheduled != want {
			errs = append(errs, fmt.Sprintf("ticks[%d] (tick %d): scheduled %s = %d, want %d",
				index, tick.TickIndex, name, c.Scheduled, want))
		}
	}
	for _, name := range sortedNames(ex.Backlog) {
		want := ex.Backlog[name]
		c, ok := tick.Category(name)
		if !ok {
			errs = append(errs, fmt.Sprintf("ticks[%d]: unknown category %q in expect.backlog", index, name))
			continue
		}
		if c.Backlog != want {
			errs = append(errs, fmt.Sprintf("ticks[%d] (tick %d): backlog %s = %d, want %d",
				index, tick.TickIndex, name, c.Backlog, want))
		}
	}
	if ex.Items != nil {
		got := make([]string, len(tick.Scheduled))
		for i, s := range tick.Scheduled {
			got[i] = s.Item.ID
		}
		if !slices.Equal(got, ex.Items) {
			errs = append(errs, fmt.Sprintf("ticks[%d] (tick %d): items %v, want %v",
				index, tick.TickIndex, got, ex.Items))
		}
	}
	return errs
}

// submitAll queues every submission in order.
func (h *Harness) submitAll(subs []Submission) error {
	for i, sub := range subs {
		if err := h.submit(sub); err != nil {
			return fmt.Errorf("submission %d (%s): %w", i, sub.Category, err)
		}
	}
	return nil
}

func (h *Harness) submit(sub Submission) error {
	prefix := sub.Prefix
	if prefix == "" {
		prefix = sub.Category
	}
	gen, ok := h.ids[prefix]
	if !ok {
		gen = testutil.NewSequentialIDs(prefix)
		h.ids[prefix] = gen
	}
	weight := engine.DefaultItemWeight
	if sub.Weight != nil {
		weight = *sub.Weight
	}

	for k := 0; k < sub.Count; k++ {
		item := engine.WorkItem{ID: gen.Generate(), Weight: weight}
		if _, dup := h.order[item.ID]; dup {
			return errors.New("duplicate item id " + item.ID)
		}
		var err error
		if sub.Lane != nil {
			err = h.engine.SubmitToLane(sub.Category, *sub.Lane, item)
		} else {
			err = h.engine.Submit(sub.Category, item)
		}
		if err != nil {
			return err
		}
		h.seq++
		h.order[item.ID] = h.seq
	}
	return nil
}
