package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/testutil"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// referenceRecords runs n ticks of the backpressure scenario and returns
// their rows for runID.
func referenceRecords(t *testing.T, runID string, n int) []TickRecord {
	t.Helper()
	e := testutil.NewReferenceEngine(t)
	testutil.FillReference(t, e)

	sealer := fingerprint.DefaultSealer()
	out := make([]TickRecord, 0, n)
	for _, r := range testutil.StepN(t, e, n, 1000) {
		out = append(out, mustRecord(t, runID, r, sealer))
	}
	return out
}

func mustRecord(t *testing.T, runID string, r *engine.TickResult, sealer fingerprint.Sealer) TickRecord {
	t.Helper()
	fp, err := sealer.Fingerprint(r)
	require.NoError(t, err)
	rec, err := NewTickRecord(runID, r, fp)
	require.NoError(t, err)
	return rec
}

func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := s.CreateRun(context.Background(), NewFixedGenerator(id), "test", "digest")
	require.NoError(t, err)
	return run
}
