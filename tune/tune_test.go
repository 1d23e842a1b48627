package tune

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/clean"
	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/workflow"
)

func cleaned(t *testing.T, n int) *dataset.Table {
	t.Helper()
	raw, err := dataset.SimulateSymptoms(n, 7)
	require.NoError(t, err)
	var ordered []clean.Ordered
	for _, name := range dataset.SeveritySymptoms {
		ordered = append(ordered, clean.Ordered{Column: name, Levels: dataset.Severity})
	}
	out, _, err := clean.Clean(raw, clean.Options{
		Required: []string{"BodyTemp", "Nausea"},
		Drop:     append([]string{"Unique.Visit"}, dataset.RedundantSymptoms...),
		Ordered:  ordered,
		Logger:   log.NewTestLogger(log.LevelWarn),
	})
	require.NoError(t, err)
	return out
}

func bodyTempRecipe(t *dataset.Table) recipe.Recipe {
	return recipe.New("BodyTemp", recipe.AllPredictors(t, "BodyTemp"),
		recipe.Dummy(), recipe.OrdinalScore(), recipe.ZeroVariance(), recipe.Normalize())
}

// meanModel predicts the training mean plus the penalty, so configurations
// rank by penalty on every fold.
type meanModel struct{ v float64 }

func (m meanModel) Predict(X mat.Matrix) ([]float64, error) {
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.v
	}
	return out, nil
}

func (m meanModel) PredictProb(mat.Matrix) ([]float64, error) {
	return nil, errors.New("regression only")
}

func penaltyGrid(t *testing.T, penalties ...float64) *grid.Grid {
	t.Helper()
	g, err := grid.Cartesian(workflow.RegularizedLinear.Params(), map[string][]float64{
		"penalty": penalties,
		"mixture": {1},
	})
	require.NoError(t, err)
	return g
}

func folds(t *testing.T, tbl *dataset.Table, v int) *resample.Resamples {
	t.Helper()
	rs, err := resample.VFold(tbl, v, 1, "", 11)
	require.NoError(t, err)
	return rs
}

func TestGridRecordsFailedFoldAndContinues(t *testing.T) {
	tbl := cleaned(t, 200)
	var bCalls atomic.Int32
	m := workflow.ModelFunc(func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		if p["penalty"] == 0.01 && bCalls.Add(1) == 1 {
			return nil, errors.New("solver diverged")
		}
		return meanModel{v: stat.Mean(y, nil) + p["penalty"]}, nil
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))
	logger := log.NewTestLogger(log.LevelDebug)

	res, err := Grid(context.Background(), wf, folds(t, tbl, 4), penaltyGrid(t, 0.001, 0.01, 0.1), Options{Workers: 3, Logger: logger})
	require.NoError(t, err)
	require.Len(t, res.Configs, 3)
	assert.False(t, res.Partial)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"rmse", "rsq"}, res.Metrics)

	a, b, c := res.Configs[0], res.Configs[1], res.Configs[2]
	assert.Equal(t, "Model02", b.ID)
	assert.Equal(t, 1, b.Failures)
	assert.Equal(t, 3, b.Metrics["rmse"].N)
	assert.Equal(t, StatusComplete, b.Status)
	for _, cr := range []ConfigResult{a, c} {
		assert.Zero(t, cr.Failures)
		assert.Equal(t, 4, cr.Metrics["rmse"].N)
		assert.Positive(t, cr.Metrics["rmse"].StdErr)
	}

	var failed []FoldScore
	for _, f := range b.Folds {
		if f.Err != "" {
			failed = append(failed, f)
		}
	}
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Err, "solver diverged")
	assert.Contains(t, failed[0].Err, "penalty=0.01")
	assert.True(t, logger.ContainsMessage("fit failed"))
	assert.Equal(t, 1, res.Failures())
}

func TestSelectBestByAscendingRMSE(t *testing.T) {
	res := &Results{
		Family:  "regularized_linear",
		Params:  grid.Set{grid.Penalty()},
		Metrics: []string{"rmse", "rsq"},
		Configs: []ConfigResult{
			{ID: "Model01", Index: 0, Config: grid.Config{"penalty": 0.1}, Metrics: map[string]Summary{"rmse": {Mean: 1.2, N: 5}, "rsq": {Mean: 0.1, N: 5}}},
			{ID: "Model02", Index: 1, Config: grid.Config{"penalty": 0.01}, Metrics: map[string]Summary{"rmse": {Mean: 0.9, N: 5}, "rsq": {Mean: 0.2, N: 5}}},
			{ID: "Model03", Index: 2, Config: grid.Config{"penalty": 0.001}, Metrics: map[string]Summary{"rmse": {Mean: 0.95, N: 5}, "rsq": {Mean: 0.3, N: 5}}},
		},
	}
	best, err := res.SelectBest("rmse")
	require.NoError(t, err)
	assert.Equal(t, "Model02", best.ID)

	best, err = res.SelectBest("")
	require.NoError(t, err)
	assert.Equal(t, "Model02", best.ID)

	best, err = res.SelectBest("rsq")
	require.NoError(t, err)
	assert.Equal(t, "Model03", best.ID)

	top, err := res.ShowBest("rmse", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Model03", top[1].ID)

	_, err = res.SelectBest("accuracy")
	var se *errors.SelectionError
	assert.ErrorAs(t, err, &se)
}

func TestRankBreaksTiesBySimplicity(t *testing.T) {
	res := &Results{
		Params:  grid.Set{grid.Penalty(), grid.Mixture()},
		Metrics: []string{"rmse"},
		Configs: []ConfigResult{
			{ID: "Model01", Index: 0, Config: grid.Config{"penalty": 0.01, "mixture": 1}, Metrics: map[string]Summary{"rmse": {Mean: 1}}},
			{ID: "Model02", Index: 1, Config: grid.Config{"penalty": 0.1, "mixture": 0}, Metrics: map[string]Summary{"rmse": {Mean: 1 + 1e-14}}},
			{ID: "Model03", Index: 2, Config: grid.Config{"penalty": 0.1, "mixture": 1}, Metrics: map[string]Summary{"rmse": {Mean: 1}}},
			{ID: "Model04", Index: 3, Config: grid.Config{"penalty": 0.1, "mixture": 1}, Metrics: map[string]Summary{"rmse": {Mean: 1}}},
			{ID: "Model05", Index: 4, Config: grid.Config{"penalty": 1, "mixture": 1}, Metrics: map[string]Summary{}, Status: StatusExcluded},
		},
	}
	ranked, err := res.Rank("rmse")
	require.NoError(t, err)
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"Model03", "Model04", "Model02", "Model01"}, ids)
}

func TestGridExcludesConfigurationWhoseEveryFoldFails(t *testing.T) {
	tbl := cleaned(t, 160)
	m := workflow.ModelFunc(func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		if p["penalty"] == 0.1 {
			panic("boom")
		}
		return meanModel{v: stat.Mean(y, nil)}, nil
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))
	logger := log.NewTestLogger(log.LevelDebug)

	res, err := Grid(context.Background(), wf, folds(t, tbl, 3), penaltyGrid(t, 0.01, 0.1), Options{Workers: 2, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, StatusExcluded, res.Configs[1].Status)
	assert.Equal(t, 3, res.Configs[1].Failures)
	assert.Contains(t, res.Configs[1].Folds[0].Err, "panic")
	assert.True(t, logger.ContainsMessage("configuration excluded: every fold failed"))

	ranked, err := res.Rank("rmse")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "Model01", ranked[0].ID)
}

func TestSelectBestWithoutSuccessfulFold(t *testing.T) {
	tbl := cleaned(t, 160)
	m := workflow.ModelFunc(func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		return nil, errors.New("always fails")
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))
	res, err := Grid(context.Background(), wf, folds(t, tbl, 3), penaltyGrid(t, 0.01), Options{Logger: log.NewTestLogger(log.LevelError)})
	require.NoError(t, err)

	_, err = res.SelectBest("rmse")
	var se *errors.SelectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "regularized_linear", se.Family)
}

func TestGridCountsNonFinitePredictionsAsFailures(t *testing.T) {
	tbl := cleaned(t, 200)
	m := workflow.ModelFunc(func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		if p["penalty"] == 0.001 {
			return meanModel{v: math.NaN()}, nil
		}
		return meanModel{v: stat.Mean(y, nil) + p["penalty"]}, nil
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))

	res, err := Grid(context.Background(), wf, folds(t, tbl, 4), penaltyGrid(t, 0.001, 0.01, 0.1), Options{Workers: 2, Logger: log.NewTestLogger(log.LevelError)})
	require.NoError(t, err)

	nan := res.Configs[0]
	assert.Equal(t, StatusExcluded, nan.Status)
	assert.Equal(t, 4, nan.Failures)
	assert.Empty(t, nan.Metrics)
	assert.Contains(t, nan.Folds[0].Err, "numerical instability detected in metrics")
	assert.Equal(t, 4, res.Failures())

	best, err := res.SelectBest("rmse")
	require.NoError(t, err)
	assert.Equal(t, "Model02", best.ID)
	assert.False(t, math.IsNaN(best.Metrics["rmse"].Mean))
}

func TestRankSkipsNonFiniteMeans(t *testing.T) {
	res := &Results{
		Family:  "regularized_linear",
		Params:  grid.Set{grid.Penalty()},
		Metrics: []string{"rmse"},
		Configs: []ConfigResult{
			{ID: "Model01", Index: 0, Config: grid.Config{"penalty": 0.1}, Metrics: map[string]Summary{"rmse": {Mean: math.NaN(), N: 3}}},
			{ID: "Model02", Index: 1, Config: grid.Config{"penalty": 0.01}, Metrics: map[string]Summary{"rmse": {Mean: 0.9, N: 3}}},
			{ID: "Model03", Index: 2, Config: grid.Config{"penalty": 0.001}, Metrics: map[string]Summary{"rmse": {Mean: math.Inf(1), N: 3}}},
		},
	}
	ranked, err := res.Rank("rmse")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "Model02", ranked[0].ID)
}

func TestGridCancellationStopsDispatch(t *testing.T) {
	tbl := cleaned(t, 160)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	m := workflow.ModelFunc(func(_ context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return meanModel{v: stat.Mean(y, nil)}, nil
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))

	// 5 configurations x 2 folds = 10 pairs, run one at a time.
	g := penaltyGrid(t, 0.0001, 0.001, 0.01, 0.1, 1)
	res, err := Grid(ctx, wf, folds(t, tbl, 2), g, Options{Workers: 1, Logger: log.NewTestLogger(log.LevelError)})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Partial)
	assert.EqualValues(t, 2, calls.Load())

	assert.Equal(t, StatusComplete, res.Configs[0].Status)
	assert.Equal(t, 2, res.Configs[0].Metrics["rmse"].N)
	for _, c := range res.Configs[1:] {
		assert.Equal(t, StatusIncomplete, c.Status)
		assert.Empty(t, c.Metrics)
	}
	ranked, err := res.Rank("rmse")
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
}

func TestGridRequiresGridForTunableWorkflow(t *testing.T) {
	tbl := cleaned(t, 120)
	wf := workflow.New(workflow.DecisionTree, model.Regression, bodyTempRecipe(tbl))
	_, err := Grid(context.Background(), wf, folds(t, tbl, 3), nil, Options{})
	assert.ErrorIs(t, err, errors.ErrUnresolvedParam)

	_, err = Grid(context.Background(), wf, folds(t, tbl, 3), penaltyGrid(t, 0.1), Options{})
	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTuneSelectLastFit(t *testing.T) {
	tbl := cleaned(t, 400)
	split, err := resample.InitialSplit(tbl, 0.7, "BodyTemp", 123)
	require.NoError(t, err)
	rs, err := resample.VFold(split.Training(), 5, 1, "BodyTemp", 123)
	require.NoError(t, err)

	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl))
	g, err := grid.Regular(wf.Params, 3)
	require.NoError(t, err)
	res, err := Grid(context.Background(), wf, rs, g, Options{Workers: 4, Logger: log.NewTestLogger(log.LevelWarn)})
	require.NoError(t, err)
	assert.Zero(t, res.Failures())

	_, err = LastFit(context.Background(), wf, split)
	assert.ErrorIs(t, err, errors.ErrLeakage)

	best, err := res.SelectBest("rmse")
	require.NoError(t, err)
	final, err := wf.Finalize(best.Config)
	require.NoError(t, err)

	logger := log.NewTestLogger(log.LevelInfo)
	lf, err := LastFit(context.Background(), final, split, WithMetrics("rmse", "mae"), WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, []string{"rmse", "mae"}, lf.Metrics)
	assert.Equal(t, len(split.Train), lf.Train.Predictions.Len())
	assert.Equal(t, len(split.Test), lf.Test.Predictions.Len())
	assert.Len(t, lf.Test.Residuals(), len(split.Test))
	assert.Positive(t, lf.Test.Metrics["rmse"])
	for id, v := range best.Config {
		assert.Equal(t, v, lf.Fitted.Params[id], id)
	}
	assert.True(t, logger.ContainsMessage("last fit"))
}

func TestBaselineUsesTheSamePath(t *testing.T) {
	tbl := cleaned(t, 200)
	split, err := resample.InitialSplit(tbl, 0.75, "", 5)
	require.NoError(t, err)
	rs, err := resample.VFold(split.Training(), 4, 2, "", 5)
	require.NoError(t, err)

	wf := workflow.New(workflow.Baseline, model.Regression, bodyTempRecipe(tbl))
	res, err := Grid(context.Background(), wf, rs, nil, Options{Logger: log.NewTestLogger(log.LevelWarn)})
	require.NoError(t, err)
	require.Len(t, res.Configs, 1)
	assert.Equal(t, 8, res.Configs[0].Metrics["rmse"].N)

	best, err := res.SelectBest("rmse")
	require.NoError(t, err)
	final, err := wf.Finalize(best.Config)
	require.NoError(t, err)
	lf, err := LastFit(context.Background(), final, split)
	require.NoError(t, err)

	_, sd := stat.PopMeanStdDev(lf.Train.Predictions.Truth, nil)
	assert.InDelta(t, sd, lf.Train.Metrics["rmse"], 1e-9)
}

func TestResultsGobRoundTrip(t *testing.T) {
	tbl := cleaned(t, 160)
	var mu sync.Mutex
	seen := map[float64]bool{}
	m := workflow.ModelFunc(func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (workflow.Trained, error) {
		mu.Lock()
		defer mu.Unlock()
		if !seen[p["penalty"]] && p["penalty"] == 0.1 {
			seen[p["penalty"]] = true
			return nil, errors.New("first fit fails")
		}
		return meanModel{v: stat.Mean(y, nil)}, nil
	})
	wf := workflow.New(workflow.RegularizedLinear, model.Regression, bodyTempRecipe(tbl), workflow.WithModel(m))
	res, err := Grid(context.Background(), wf, folds(t, tbl, 3), penaltyGrid(t, 0.01, 0.1), Options{Logger: log.NewTestLogger(log.LevelError)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(res))
	var back Results
	require.NoError(t, gob.NewDecoder(&buf).Decode(&back))
	assert.Equal(t, res.RunID, back.RunID)
	assert.Equal(t, res.Failures(), back.Failures())

	want, err := res.SelectBest("rmse")
	require.NoError(t, err)
	got, err := back.SelectBest("rmse")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}
