package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Run is one row of the runs table.
type Run struct {
	ID           string
	Seq          int64
	Label        string
	ConfigDigest string
}

// CreateRun inserts a new run with the next seq value.
func (s *Store) CreateRun(ctx context.Context, gen RunIDGenerator, label, configDigest string) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("create run: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, fmt.Errorf("create run: next seq: %w", err)
	}

	run := Run{ID: gen.Generate(), Seq: seq, Label: label, ConfigDigest: configDigest}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, label, config_digest)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Seq, run.Label, run.ConfigDigest); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("create run: commit: %w", err)
	}
	return run, nil
}

// WriteTick inserts a tick record.
// Uses ON CONFLICT(run_id, tick) DO NOTHING for idempotency.
// The run must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, rec TickRecord) error {
	if err := writeTick(ctx, s.db, rec); err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	return nil
}

// WriteTicks inserts tick records in one transaction. Either all rows are
// written or none are.
func (s *Store) WriteTicks(ctx context.Context, recs []TickRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write ticks: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, rec := range recs {
		if err := writeTick(ctx, tx, rec); err != nil {
			return fmt.Errorf("write ticks: tick %d: %w", rec.Tick, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write ticks: commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeTick(ctx context.Context, db execer, rec TickRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ticks
		(run_id, tick, angle_micro, modifier_micro, scheduled, pulled_micro, backlog, fingerprint, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, tick) DO NOTHING
	`,
		rec.RunID,
		rec.Tick,
		rec.AngleMicro,
		rec.ModifierMicro,
		rec.Scheduled,
		rec.PulledMicro,
		rec.Backlog,
		rec.Fingerprint,
		rec.Payload,
	)
	return err
}
