// Package tune scores a workflow over a hyperparameter grid by resampling,
// selects the best configuration and evaluates it on the held-out partition.
//
// The recipe is prepped once per fold on the analysis rows. Every
// (configuration, fold) pair is then an independent task on a bounded
// worker pool:
//
//	rs, _ := resample.VFold(split.Training(), 10, 1, "BodyTemp", 123)
//	res, err := tune.Grid(ctx, wf, rs, g, tune.Options{Workers: 4})
//	best, err := res.SelectBest("rmse")
//	final, _ := wf.Finalize(best.Config)
//	lf, err := tune.LastFit(ctx, final, split)
//
// A failed pair is recorded and the search continues. Configurations are
// aggregated only when every fold has an outcome.
package tune

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// Options configures Grid. The zero value uses the mode's default metrics,
// runtime.NumCPU() workers and no fit timeout.
type Options struct {
	// Metrics names the metrics to compute; the first is primary.
	Metrics []string
	Workers int
	// FitTimeout bounds one (configuration, fold) pair. Zero disables it.
	FitTimeout time.Duration
	Logger     log.Logger
	Recorder   *Recorder
}

// baked is the fixed preprocessing of one fold.
type baked struct {
	prepped *recipe.Prepped
	X       *mat.Dense
	y       []float64
	assessX *mat.Dense
	assessY []float64
}

func bakeFold(wf *workflow.Workflow, rs *resample.Resamples, i int) (*baked, error) {
	analysis := rs.Analysis(i)
	prepped, err := wf.Recipe.Prep(analysis)
	if err != nil {
		return nil, err
	}
	b := &baked{prepped: prepped}
	if b.X, err = prepped.Matrix(analysis); err != nil {
		return nil, err
	}
	if b.y, err = prepped.Outcome(analysis); err != nil {
		return nil, err
	}
	assessment := rs.Assessment(i)
	if b.assessX, err = prepped.Matrix(assessment); err != nil {
		return nil, err
	}
	if b.assessY, err = prepped.Outcome(assessment); err != nil {
		return nil, err
	}
	return b, nil
}

// checkGrid verifies that g tunes exactly the workflow's parameters.
func checkGrid(wf *workflow.Workflow, g *grid.Grid) error {
	want, got := wf.Params.IDs(), g.Params.IDs()
	if len(want) != len(got) {
		return errors.NewValidationError("grid", fmt.Sprintf("tunes %v, workflow needs %v", got, want), got)
	}
	for i := range want {
		if want[i] != got[i] {
			return errors.NewValidationError("grid", fmt.Sprintf("tunes %v, workflow needs %v", got, want), got)
		}
	}
	return g.Validate()
}

// Grid scores every configuration of g on every fold of rs. A nil g means
// the empty grid and is only valid for workflows without tunable parameters.
//
// Cancelling ctx stops dispatch. Grid then returns the partial Results,
// with Partial set, together with the context error.
func Grid(ctx context.Context, wf *workflow.Workflow, rs *resample.Resamples, g *grid.Grid, opts Options) (*Results, error) {
	if g == nil {
		if len(wf.Params) > 0 {
			return nil, errors.NewUsageError("tune.Grid",
				fmt.Sprintf("%s tunes %v but no grid was given", wf.Family, wf.Params.IDs()), errors.ErrUnresolvedParam)
		}
		g = grid.Empty()
	}
	if err := checkGrid(wf, g); err != nil {
		return nil, err
	}
	if g.Len() == 0 {
		return nil, errors.NewValidationError("grid", "no configurations", 0)
	}
	if err := wf.CheckOutcome(rs.Data()); err != nil {
		return nil, err
	}
	set, err := metrics.NewSet(wf.Mode, opts.Metrics...)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("tune")
	}
	logger = logger.With(log.RunIDKey, runID, log.FamilyKey, wf.Family.String())
	poolOpts := []parallel.PoolOption{parallel.WithWorkers(opts.Workers), parallel.WithTimeout(opts.FitTimeout)}
	pool := parallel.NewPool(poolOpts...)
	nFolds := rs.Len()
	logger.Info("tuning started",
		log.OperationKey, log.OperationTune,
		log.ConfigsKey, g.Len(),
		log.FoldsKey, nFolds,
		log.WorkersKey, pool.Workers(),
	)
	start := time.Now()

	folds := parallel.Run(ctx, pool, nFolds, func(ctx context.Context, i int) (*baked, error) {
		return bakeFold(wf, rs, i)
	})

	if opts.Recorder != nil {
		family := wf.Family.String()
		pool = parallel.NewPool(append(poolOpts,
			parallel.WithObserver(func(e parallel.Event) { opts.Recorder.Observe(family, e.Status, e.Elapsed) }))...)
	}
	pairs := parallel.Run(ctx, pool, g.Len()*nFolds, func(ctx context.Context, i int) (map[string]float64, error) {
		c, f := i/nFolds, i%nFolds
		fold := folds[f]
		if fold.Status != parallel.StatusDone {
			if fold.Err == nil {
				return nil, errors.Newf("fold %s was not prepared", rs.Folds[f].ID)
			}
			return nil, errors.Wrap(fold.Err, "prep")
		}
		b := fold.Value
		fitted, err := wf.FitDesign(ctx, b.prepped, b.X, b.y, g.Configs[c])
		if err != nil {
			return nil, err
		}
		est, prob, err := fitted.PredictDesign(b.assessX)
		if err != nil {
			return nil, err
		}
		scores, err := set.Compute(metrics.Predictions{Truth: b.assessY, Estimate: est, Prob: prob})
		if err != nil {
			return nil, err
		}
		// NaN や Inf の予測は成功扱いにせず失敗として数える
		values := make([]float64, 0, len(scores))
		for _, v := range scores {
			values = append(values, v)
		}
		if err := errors.CheckNumericalStability("metrics", values, 0); err != nil {
			return nil, err
		}
		return scores, nil
	})

	res := &Results{
		RunID:   runID,
		Family:  wf.Family.String(),
		Mode:    wf.Mode,
		Params:  g.Params,
		Metrics: set.Names(),
		Folds:   nFolds,
		Configs: make([]ConfigResult, g.Len()),
	}
	for c := range res.Configs {
		res.Configs[c] = aggregate(wf, rs, g, c, set, pairs[c*nFolds:(c+1)*nFolds], logger)
		if res.Configs[c].Status == StatusIncomplete {
			res.Partial = true
		}
	}

	logger.Info("tuning finished",
		log.OperationKey, log.OperationTune,
		log.FailuresKey, res.Failures(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"partial", res.Partial,
	)
	if err := ctx.Err(); err != nil && res.Partial {
		return res, errors.Wrap(err, "tuning cancelled")
	}
	return res, nil
}

// aggregate summarizes the fold outcomes of configuration c.
func aggregate(wf *workflow.Workflow, rs *resample.Resamples, g *grid.Grid, c int, set metrics.Set,
	outcomes []parallel.Outcome[map[string]float64], logger log.Logger) ConfigResult {
	cr := ConfigResult{
		ID:      g.ID(c),
		Index:   c,
		Config:  g.Configs[c],
		Label:   g.Label(c),
		Metrics: make(map[string]Summary, len(set)),
		Folds:   make([]FoldScore, len(outcomes)),
	}
	values := make(map[string][]float64, len(set))
	for f, o := range outcomes {
		fs := FoldScore{Fold: rs.Folds[f].ID, Status: o.Status}
		switch o.Status {
		case parallel.StatusDone:
			fs.Metrics = o.Value
			for name, v := range o.Value {
				values[name] = append(values[name], v)
			}
		case parallel.StatusPending, parallel.StatusCanceled:
			cr.Status = StatusIncomplete
		default:
			cr.Failures++
			err := errors.NewFitError(wf.Family.String(), cr.Label, fs.Fold, o.Err)
			fs.Err = err.Error()
			logger.Debug("fit failed", "error", fs.Err, log.ConfigKey, cr.Label, log.FoldKey, fs.Fold)
		}
		cr.Folds[f] = fs
	}
	if cr.Status == StatusIncomplete {
		return cr
	}
	for _, m := range set {
		v := values[m.Name]
		if len(v) == 0 {
			continue
		}
		s := Summary{N: len(v), Mean: stat.Mean(v, nil)}
		if len(v) > 1 {
			s.StdErr = stat.StdDev(v, nil) / math.Sqrt(float64(len(v)))
		}
		cr.Metrics[m.Name] = s
	}
	if len(cr.Metrics) == 0 {
		cr.Status = StatusExcluded
		logger.Warn("configuration excluded: every fold failed",
			log.ConfigKey, cr.Label,
			log.FailuresKey, cr.Failures,
		)
	}
	return cr
}
