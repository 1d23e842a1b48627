package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/report"
)

const testConfig = `
log:
  level: warn
  console: false
data:
  raw: %[1]s/raw.arrow
  cleaned: %[1]s/clean.arrow
  rows: 240
  seed: 5
run:
  folds: 2
  repeats: 1
  workers: 2
  families:
    - name: baseline
    - name: regularized_linear
      grid:
        values:
          penalty: [0.001, 0.1]
          mixture: [1]
output:
  dir: %[1]s/out
  plots: true
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tidytune.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(testConfig, dir)), 0o644))

	execute(t, "simulate", "--config", cfgPath)
	assert.FileExists(t, filepath.Join(dir, "raw.arrow"))

	execute(t, "clean", "--config", cfgPath)
	assert.FileExists(t, filepath.Join(dir, "clean.arrow"))

	out := execute(t, "tune", "--config", cfgPath)
	assert.Contains(t, out, "regularized_linear")
	for _, name := range []string{"summaries.json", "results.gob", "config.yaml", "metrics.prom", "baseline_observed.png", "regularized_linear_residuals.png"} {
		assert.FileExists(t, filepath.Join(dir, "out", name))
	}
	sums, err := report.ReadSummaries(filepath.Join(dir, "out", "summaries.json"))
	require.NoError(t, err)
	// 2 families x 3 stages x {rmse, rsq}
	assert.Len(t, sums, 12)

	prom, err := os.ReadFile(filepath.Join(dir, "out", "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `tidytune_fits_total{family="regularized_linear",status="done"} 4`)

	out = execute(t, "report", "--config", cfgPath, "--top", "1")
	assert.Contains(t, out, "regularized_linear (2 configurations, 2 folds)")
	assert.FileExists(t, filepath.Join(dir, "out", "regularized_linear_penalty.png"))
}

func TestTuneInterruptedWritesPartialResults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tidytune.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(testConfig, dir)), 0o644))
	execute(t, "simulate", "--config", cfgPath)
	execute(t, "clean", "--config", cfgPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"tune", "--config", cfgPath})
	require.ErrorIs(t, root.ExecuteContext(ctx), context.Canceled)

	sums, err := report.ReadSummaries(filepath.Join(dir, "out", "summaries.json"))
	require.NoError(t, err)
	require.NotEmpty(t, sums)
	assert.Equal(t, "baseline", sums[0].Model)
	assert.Equal(t, compare.StageResamples, sums[0].Stage)
	assert.Contains(t, sums[0].Error, "interrupted")

	cp, err := report.LoadResults(filepath.Join(dir, "out", "results.gob"))
	require.NoError(t, err)
	require.Len(t, cp.Results, 1)
	assert.True(t, cp.Results[0].Partial)
}

func TestUnknownConfigFails(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"tune", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}
