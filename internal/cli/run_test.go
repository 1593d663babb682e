package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quadlane/internal/store"
)

func decodeRunSummary(t *testing.T, out string) RunSummary {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestRunFixedTicksWithoutProducers(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", filepath.Join(configDir, "reference.cue"),
		"--ticks", "3", "--interval", "1ms", "--producers", "0")
	require.NoError(t, err)

	summary := decodeRunSummary(t, out)
	assert.Equal(t, int64(3), summary.Ticks)
	assert.Equal(t, 0, summary.Scheduled)
	assert.Equal(t, int64(0), summary.Submitted)
	assert.Equal(t, map[string]int{"Cost": 0, "Revenue": 0, "Overhead": 0, "Growth": 0}, summary.Backlog)
	assert.Len(t, summary.Last, 64)
	assert.Empty(t, summary.RunID)
}

func TestRunIsDeterministicWithoutProducers(t *testing.T) {
	args := []string{"--format", "json", "run", filepath.Join(configDir, "reference.yaml"),
		"--ticks", "4", "--interval", "0", "--producers", "0", "--mass", "seq:1000,250"}

	first, err := execute(t, args...)
	require.NoError(t, err)
	second, err := execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, decodeRunSummary(t, first).Last, decodeRunSummary(t, second).Last)
}

func TestRunWithProducersRecordsTicks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions:     &RootOptions{Format: "text"},
		Interval:        2 * time.Millisecond,
		Ticks:           5,
		Mass:            "1000",
		Producers:       3,
		ProduceInterval: time.Millisecond,
		Database:        dbPath,
		Label:           "live",
		RunIDs:          store.NewFixedGenerator("live-1"),
	}

	require.NoError(t, runLive(opts, filepath.Join(configDir, "reference.cue"), bareCommand(buf)))
	assert.Contains(t, buf.String(), "Ran 5 ticks")
	assert.Contains(t, buf.String(), "Recorded run live-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(context.Background(), "live-1")
	require.NoError(t, err)
	assert.Equal(t, "live", run.Label)

	ticks, err := st.ReadTicks(context.Background(), "live-1")
	require.NoError(t, err)
	require.Len(t, ticks, 5)
	for i, rec := range ticks {
		assert.Equal(t, int64(i+1), rec.Tick)
		assert.Len(t, rec.Fingerprint, 64)
	}
}

func TestRunServesMetricsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan string, 1)
	opts := &RunOptions{
		RootOptions:     &RootOptions{Format: "text"},
		Interval:        time.Millisecond,
		Mass:            "1000",
		Producers:       1,
		ProduceInterval: time.Millisecond,
		MetricsAddr:     "127.0.0.1:0",
		onListen:        func(addr string) { addrs <- addr },
	}
	buf := &bytes.Buffer{}
	cmd := bareCommand(buf)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- runLive(opts, filepath.Join(configDir, "reference.cue"), cmd)
	}()

	var addr string
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("run exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics listener never bound")
	}

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: time.Second}

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK &&
			strings.Contains(string(body), "quadlane_scheduler_ticks_total") &&
			strings.Contains(string(body), `category="Cost"`)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Contains(t, buf.String(), "Ran ")
}

func TestRunCommandErrors(t *testing.T) {
	cfg := filepath.Join(configDir, "reference.cue")
	tests := []struct {
		name string
		args []string
	}{
		{"bad_mass", []string{"run", cfg, "--mass", "seq:"}},
		{"negative_ticks", []string{"run", cfg, "--ticks", "-1"}},
		{"negative_producers", []string{"run", cfg, "--producers", "-2"}},
		{"zero_produce_interval", []string{"run", cfg, "--produce-interval", "0"}},
		{"missing_config", []string{"run", "/nonexistent/quadlane.cue", "--ticks", "1"}},
		{"invalid_config", []string{"run", filepath.Join(configDir, "bias_length.toml"), "--ticks", "1"}},
		{"bad_metrics_addr", []string{"run", cfg, "--ticks", "1", "--metrics-addr", "127.0.0.1:-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
