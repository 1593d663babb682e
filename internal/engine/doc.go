// Package engine implements the quadlane tick scheduler.
//
// The engine owns a fixed topology of categories, each with a fixed number of
// FIFO lanes, plus two pieces of mutable state: the oscillator angle and one
// round-robin cursor per category. Everything else computed during a tick is
// a pure function of that state and the tick's raw mass.
//
// ARCHITECTURE:
//
// Tick Processing Flow (Step):
// 1. Validate raw mass. Nothing is mutated on failure.
// 2. Advance the oscillator one tick and read the rotation modifier.
// 3. Assign each category its mass share from the allocator weights.
// 4. capacity = max(floor, lanes * share * priority * modifier).
// 5. Per category, visit every lane once from the cursor with wraparound,
//    dequeuing heads that fit the remaining capacity. Advance the cursor.
// 6. Return a TickResult. The engine keeps no history.
//
// Single Owner:
// Engine is not safe for concurrent use. Step must be called sequentially by
// one owner and must not overlap Submit. Host adds the mutual exclusion for
// multi-producer use and drives Step from a single consuming loop.
//
// CRITICAL PATTERNS:
//
// Deterministic Scheduling
// Categories are processed in declaration order. Lane visits start at the
// cursor and wrap. No randomness, no wall clock, no goroutines.
//
// Atomic Ticks
// All validation runs before the oscillator or any cursor is touched, so a
// rejected Step leaves the engine exactly as it was.
package engine
