// Package store provides a SQLite audit log of tick fingerprints.
//
// The log is append-only:
//   - Runs: one row per simulation or live run, keyed by a UUIDv7
//   - Ticks: one row per tick, keyed by (run_id, tick)
//
// Engine state is never persisted or restored from here. A run can be
// verified later by re-simulating its scenario and comparing fingerprints.
//
// # Critical Patterns
//
// Idempotent Writes
//   - PRIMARY KEY(run_id, tick) with ON CONFLICT DO NOTHING
//   - Re-recording a tick is a no-op
//
// Deterministic Query Results
//   - Ticks are read ORDER BY tick ASC; runs ORDER BY seq ASC
//   - Reals are stored as integer micro-units, never as REAL
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Tick payloads are RFC 8785 canonical JSON produced by internal/ir.
package store
