package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/tune"
)

func sampleSummaries() []compare.Summary {
	return []compare.Summary{
		{Model: "baseline", Stage: "resamples", Metric: "rmse", Mean: 1.21, StdErr: 0.03, N: 25, Config: "(none)"},
		{Model: "regularized_linear", Stage: "test", Metric: "rmse", Mean: 1.12, N: 220, Failures: 1, Config: "penalty=0.01 mixture=1"},
		{Model: "random_forest", Stage: "resamples", Metric: "rmse", Failures: 25, Error: "tidytune: select random_forest by rmse: no successful fold"},
	}
}

func sampleResults() *tune.Results {
	mk := func(i int, penalty, rmse float64) tune.ConfigResult {
		return tune.ConfigResult{
			ID:      (&grid.Grid{}).ID(i),
			Index:   i,
			Config:  grid.Config{"penalty": penalty, "mixture": 1},
			Label:   grid.Set{grid.Penalty(), grid.Mixture()}.Label(grid.Config{"penalty": penalty, "mixture": 1}),
			Metrics: map[string]tune.Summary{"rmse": {Mean: rmse, StdErr: 0.01, N: 5}},
		}
	}
	return &tune.Results{
		RunID:   "run-1",
		Family:  "regularized_linear",
		Params:  grid.Set{grid.Penalty(), grid.Mixture()},
		Metrics: []string{"rmse"},
		Folds:   5,
		Configs: []tune.ConfigResult{mk(0, 1e-4, 1.15), mk(1, 1e-2, 1.10), mk(2, 1, 1.30)},
	}
}

func TestWriteSummariesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sums.json", "sums.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteSummaries(path, sampleSummaries()))
		got, err := ReadSummaries(path)
		require.NoError(t, err)
		assert.Equal(t, sampleSummaries(), got, name)
	}

	b, err := os.ReadFile(filepath.Join(dir, "sums.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"std_err": 0.03`)
	assert.NotContains(t, string(b[:strings.Index(string(b), "regularized")]), `"error"`)

	assert.Error(t, WriteSummaries(filepath.Join(dir, "sums.csv"), nil))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, sampleSummaries())
	out := buf.String()
	assert.Contains(t, out, "regularized_linear")
	assert.Contains(t, out, "1.1200")
	assert.Contains(t, out, "no successful fold")
	assert.Contains(t, out, "std_err")
}

func TestRenderConfigs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderConfigs(&buf, sampleResults(), "rmse", 2))
	out := buf.String()
	assert.Less(t, strings.Index(out, "Model02"), strings.Index(out, "Model01"))
	assert.NotContains(t, out, "Model03")
}

func TestRenderFailures(t *testing.T) {
	res := sampleResults()
	var buf bytes.Buffer
	assert.Zero(t, RenderFailures(&buf, res))
	assert.Empty(t, buf.String())

	res.Configs[1].Failures = 2
	res.Configs[2].Failures = 5
	res.Configs[2].Status = tune.StatusExcluded
	res.Configs[2].Metrics = map[string]tune.Summary{}
	assert.Equal(t, 2, RenderFailures(&buf, res))
	out := buf.String()
	assert.NotContains(t, out, "Model01")
	assert.Contains(t, out, "2/5")
	assert.Contains(t, out, "excluded")
	assert.Contains(t, out, "5/5")
	assert.Contains(t, out, res.Configs[2].Label)

	// the excluded configuration is missing from the ranking but not from the report
	buf.Reset()
	require.NoError(t, RenderConfigs(&buf, res, "rmse", 5))
	assert.NotContains(t, buf.String(), "Model03")
}

func TestAsciiCurve(t *testing.T) {
	out, err := AsciiCurve(sampleResults(), "penalty", "")
	require.NoError(t, err)
	assert.Contains(t, out, "regularized_linear rmse by penalty")

	_, err = AsciiCurve(sampleResults(), "trees", "rmse")
	assert.Error(t, err)
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()
	th := DefaultTheme()
	truth := []float64{98.1, 98.7, 99.2, 100.4, 98.3, 99.9}
	est := []float64{98.4, 98.6, 99.0, 99.8, 98.5, 99.5}

	files := map[string]func(string) error{
		"pred.png":   func(p string) error { return PredictedVsObserved(p, "BodyTemp", truth, est, th) },
		"resid.svg":  func(p string) error { return ResidualsVsPredicted(p, "BodyTemp", truth, est, th) },
		"roc.png":    func(p string) error { return ROCCurve(p, "Nausea", []float64{0, 0, 1, 1, 0, 1}, []float64{0.1, 0.4, 0.35, 0.8, 0.2, 0.9}, th) },
		"tuning.png": func(p string) error { return TuningCurve(p, sampleResults(), "penalty", "rmse", th) },
	}
	for name, draw := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, draw(path), name)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), name)
	}

	assert.Error(t, PredictedVsObserved(filepath.Join(dir, "x.png"), "", truth, est[:2], th))
	assert.Error(t, ROCCurve(filepath.Join(dir, "x.png"), "", nil, nil, th))
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.gob")
	cp := &Checkpoint{Results: []*tune.Results{sampleResults()}, Summaries: sampleSummaries()}
	require.NoError(t, SaveResults(path, cp))

	back, err := LoadResults(path)
	require.NoError(t, err)
	res, ok := back.Find("regularized_linear")
	require.True(t, ok)
	best, err := res.SelectBest("rmse")
	require.NoError(t, err)
	assert.Equal(t, "Model02", best.ID)
	assert.Equal(t, sampleSummaries(), back.Summaries)

	_, ok = back.Find("decision_tree")
	assert.False(t, ok)
}
