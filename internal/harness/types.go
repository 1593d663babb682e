package harness

import (
	"github.com/roach88/quadlane/internal/engine"
)

// TraceEvent records one tick for the trace.
type TraceEvent struct {
	Tick        int64          `json:"tick"`
	Mass        float64        `json:"mass"`
	Fingerprint string         `json:"fingerprint"`
	Scheduled   map[string]int `json:"scheduled"`
	Backlog     map[string]int `json:"backlog"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every tick expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains one event per successful tick, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Backlog is the engine's backlog after the last tick.
	Backlog map[string]int `json:"backlog"`

	// Ticks are the raw tick results, parallel to Trace.
	Ticks []*engine.TickResult `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Backlog: map[string]int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTick appends a tick to the trace.
func (r *Result) AddTick(tick *engine.TickResult, mass float64, fp string) {
	scheduled := make(map[string]int, len(tick.Categories))
	for _, c := range tick.Categories {
		scheduled[c.Name] = c.Scheduled
	}
	r.Trace = append(r.Trace, TraceEvent{
		Tick:        tick.TickIndex,
		Mass:        mass,
		Fingerprint: fp,
		Scheduled:   scheduled,
		Backlog:     tick.Backlog(),
	})
	r.Ticks = append(r.Ticks, tick)
}

// Fingerprints returns the per-tick fingerprints in order.
func (r *Result) Fingerprints() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Fingerprint
	}
	return out
}
