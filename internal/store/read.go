package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, label, config_digest
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Seq, &run.Label, &run.ConfigDigest)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by seq.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, label, config_digest
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Seq, &run.Label, &run.ConfigDigest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTicks returns every tick of a run ordered by tick.
// Returns an empty slice (not nil) when the run has no ticks.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tick, angle_micro, modifier_micro, scheduled, pulled_micro, backlog, fingerprint, payload
		FROM ticks
		WHERE run_id = ?
		ORDER BY tick ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	recs := []TickRecord{}
	for rows.Next() {
		var rec TickRecord
		if err := rows.Scan(
			&rec.RunID,
			&rec.Tick,
			&rec.AngleMicro,
			&rec.ModifierMicro,
			&rec.Scheduled,
			&rec.PulledMicro,
			&rec.Backlog,
			&rec.Fingerprint,
			&rec.Payload,
		); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return recs, nil
}

// FindByFingerprint returns the (run, tick) pairs that recorded fp.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tick
		FROM ticks
		WHERE fingerprint = ?
		ORDER BY run_id COLLATE BINARY ASC, tick ASC
	`, fp)
	if err != nil {
		return nil, fmt.Errorf("query fingerprint: %w", err)
	}
	defer rows.Close()

	recs := []TickRecord{}
	for rows.Next() {
		rec := TickRecord{Fingerprint: fp}
		if err := rows.Scan(&rec.RunID, &rec.Tick); err != nil {
			return nil, fmt.Errorf("scan fingerprint match: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprint matches: %w", err)
	}
	return recs, nil
}
