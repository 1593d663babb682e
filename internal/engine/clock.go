package engine

import "sync/atomic"

// TickClock is the engine's logical tick counter.
//
// Tick indexes are strictly increasing and start at 1 for the first Step.
// They never come from the wall clock, so two engines fed the same inputs
// produce the same tick indexes.
//
// Thread-safety: reads are atomic so a Host can report the current tick
// without taking the engine lock. Only Step calls Next.
type TickClock struct {
	tick atomic.Int64
}

// NewTickClock creates a clock that will hand out tick 1 first.
func NewTickClock() *TickClock {
	return &TickClock{}
}

// NewTickClockAt creates a clock positioned after tick start.
// Used when re-simulating a recorded run from a known tick.
func NewTickClockAt(start int64) *TickClock {
	c := &TickClock{}
	c.tick.Store(start)
	return c
}

// Next advances the clock and returns the new tick index.
func (c *TickClock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the index of the last completed tick (0 before any Step).
func (c *TickClock) Current() int64 {
	return c.tick.Load()
}
