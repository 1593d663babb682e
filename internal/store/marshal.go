package store

import (
	"fmt"

	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/ir"
)

// TickRecord is one row of the ticks table.
type TickRecord struct {
	RunID         string
	Tick          int64
	AngleMicro    int64
	ModifierMicro int64
	Scheduled     int
	PulledMicro   int64
	Backlog       int
	Fingerprint   string

	// Payload is the canonical JSON the fingerprint was computed over.
	Payload string
}

// NewTickRecord projects a tick result and its fingerprint onto a row.
func NewTickRecord(runID string, r *engine.TickResult, fp string) (TickRecord, error) {
	payload, err := marshalTick(r)
	if err != nil {
		return TickRecord{}, err
	}
	return TickRecord{
		RunID:         runID,
		Tick:          r.TickIndex,
		AngleMicro:    int64(ir.Micro(r.Angle)),
		ModifierMicro: int64(ir.Micro(r.RotationModifier)),
		Scheduled:     len(r.Scheduled),
		PulledMicro:   int64(ir.Micro(r.TotalPulled())),
		Backlog:       r.TotalBacklog(),
		Fingerprint:   fp,
		Payload:       payload,
	}, nil
}

// marshalTick converts a tick to canonical JSON TEXT for storage.
func marshalTick(r *engine.TickResult) (string, error) {
	data, err := ir.MarshalCanonical(fingerprint.TickValue(r))
	if err != nil {
		return "", fmt.Errorf("marshal tick %d: %w", r.TickIndex, err)
	}
	return string(data), nil
}
