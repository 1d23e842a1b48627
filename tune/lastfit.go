package tune

import (
	"context"
	"time"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// Stage names the partition an Evaluation was computed on.
type Stage string

const (
	StageTrain Stage = "train"
	StageTest  Stage = "test"
)

// Evaluation is the scoring of a fitted workflow on one partition.
type Evaluation struct {
	Stage       Stage
	Predictions metrics.Predictions
	Metrics     map[string]float64
}

// Residuals returns truth minus estimate; nil for classification.
func (e *Evaluation) Residuals() []float64 {
	if e.Predictions.Prob != nil {
		return nil
	}
	return e.Predictions.Residuals()
}

// LastFitResult is a finalized workflow refit on the whole training partition.
type LastFitResult struct {
	Fitted  *workflow.Fitted
	Metrics []string
	Train   Evaluation
	Test    Evaluation
}

// LastFitOption configures LastFit.
type LastFitOption func(*lastFitOptions)

type lastFitOptions struct {
	metrics []string
	logger  log.Logger
}

// WithMetrics selects the metrics of the evaluations. The mode defaults are
// used otherwise.
func WithMetrics(names ...string) LastFitOption {
	return func(o *lastFitOptions) { o.metrics = names }
}

// WithLogger sets the logger of LastFit.
func WithLogger(l log.Logger) LastFitOption {
	return func(o *lastFitOptions) { o.logger = l }
}

func evaluate(f *workflow.Fitted, t *dataset.Table, stage Stage, set metrics.Set) (Evaluation, error) {
	p, err := f.Predict(t)
	if err != nil {
		return Evaluation{}, err
	}
	m, err := set.Compute(p)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Stage: stage, Predictions: p, Metrics: m}, nil
}

// LastFit fits wf once on the training partition of split and evaluates it
// on both partitions. wf must be finalized.
func LastFit(ctx context.Context, wf *workflow.Workflow, split *resample.Split, opts ...LastFitOption) (*LastFitResult, error) {
	var o lastFitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("tune")
	}
	if !wf.Finalized() {
		return nil, errors.NewUsageError("LastFit", "the workflow must be finalized before the testing partition is used", errors.ErrLeakage)
	}
	set, err := metrics.NewSet(wf.Mode, o.metrics...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	train := split.Training()
	fitted, err := wf.Fit(ctx, train, nil)
	if err != nil {
		return nil, err
	}
	res := &LastFitResult{Fitted: fitted, Metrics: set.Names()}
	if res.Train, err = evaluate(fitted, train, StageTrain, set); err != nil {
		return nil, err
	}
	if res.Test, err = evaluate(fitted, split.Testing(), StageTest, set); err != nil {
		return nil, err
	}

	primary := set.Primary().Name
	o.logger.Info("last fit",
		log.OperationKey, log.OperationLastFit,
		log.FamilyKey, wf.Family.String(),
		log.ConfigKey, fitted.Params,
		log.MetricKey, primary,
		"train", res.Train.Metrics[primary],
		"test", res.Test.Metrics[primary],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}
