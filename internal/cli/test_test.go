package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeTestResult(t *testing.T, out string) (CLIResponse, TestResult) {
	t.Helper()
	var resp struct {
		CLIResponse
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.CLIResponse, resp.Data
}

func TestTestCommand_AllPass(t *testing.T) {
	out, err := execute(t, "test", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ backpressure")
	assert.Contains(t, out, "✓ invalid_mass")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_JSONReportsGoldenStatus(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenarioDir)
	require.NoError(t, err)

	resp, result := decodeTestResult(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Passed)

	golden := make(map[string]string)
	for _, sr := range result.Scenarios {
		golden[sr.Name] = sr.Golden
	}
	assert.Equal(t, map[string]string{
		"backpressure": "match",
		"invalid_mass": "missing",
		"lane_routing": "match",
		"redistribute": "match",
		"starvation":   "missing",
	}, golden)
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenarioDir, "--filter", "lane_*")
	require.NoError(t, err)

	_, result := decodeTestResult(t, out)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "lane_routing", result.Scenarios[0].Name)
}

func TestTestCommand_InvalidFilter(t *testing.T) {
	_, err := execute(t, "test", scenarioDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_UpdateThenMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")

	out, err := execute(t, "test", scenarioDir, "--golden-dir", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ backpressure (golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "backpressure.golden"))
	require.NoError(t, err)
	shipped, err := os.ReadFile(filepath.Join(goldenDir, "backpressure.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(shipped), string(written))

	_, err = execute(t, "test", scenarioDir, "--golden-dir", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "starvation.golden"), []byte("{}"), 0644))
	out, err = execute(t, "test", scenarioDir, "--golden-dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ starvation")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 4 passed, 1 failed, 5 total")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(wrongExpectation), 0644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, result := decodeTestResult(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommand_LoadErrorIsAFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	files, err = findScenarioFiles(dir, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yml")}, files)
}
