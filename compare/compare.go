// Package compare runs the whole model comparison: split, resample, tune
// every family, select its best configuration, refit it on the training
// partition and evaluate it on the held-out partition.
//
// Every setting is a field of Config; nothing is read from global state.
package compare

import (
	"context"
	"fmt"
	"time"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/resample"
	"github.com/YuminosukeSato/tidytune/tune"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// Grid types accepted by GridSpec.Type.
const (
	GridRegular        = "regular"
	GridRandom         = "random"
	GridLatinHypercube = "latin_hypercube"
	GridValues         = "values"
)

// GridSpec describes how to build a family's grid once data-dependent
// ranges are resolved.
type GridSpec struct {
	// Type is one of the Grid constants; "" means regular, or values when
	// Values is set.
	Type string
	// Levels per parameter of a regular grid.
	Levels int
	// Size of a random or latin hypercube grid.
	Size int
	// Values are candidate values per parameter for a Cartesian grid.
	Values map[string][]float64
}

// FamilyConfig selects one family and its grid.
type FamilyConfig struct {
	Family workflow.Family
	Grid   GridSpec
	// Args fixes engine values that are not tuned, e.g. trees.
	Args grid.Config
	// Model replaces the family's built-in strategy when set.
	Model workflow.Model
}

// Config is the complete description of a comparison run.
type Config struct {
	Outcome string
	Mode    model.Mode
	// Predictors defaults to every other column.
	Predictors []string
	// Steps defaults to Dummy, OrdinalScore, ZeroVariance, Normalize.
	Steps []recipe.Step

	Prop    float64
	Strata  string
	Folds   int
	Repeats int
	Seed    uint64

	// Metrics are computed everywhere; the first selects configurations.
	Metrics    []string
	Workers    int
	FitTimeout time.Duration
	Families   []FamilyConfig
}

// DefaultConfig returns the course setup: 70/30 split and 5-fold CV
// repeated 5 times, both stratified on the outcome, every family.
func DefaultConfig(outcome string, mode model.Mode) Config {
	cfg := Config{
		Outcome: outcome,
		Mode:    mode,
		Prop:    0.7,
		Strata:  outcome,
		Folds:   5,
		Repeats: 5,
		Seed:    123,
	}
	for _, f := range workflow.Families {
		cfg.Families = append(cfg.Families, FamilyConfig{Family: f, Grid: GridSpec{Levels: 3}})
	}
	return cfg
}

// Validate checks the settings that do not depend on the data.
func (c *Config) Validate() error {
	if c.Outcome == "" {
		return errors.NewValidationError("outcome", "must be set", c.Outcome)
	}
	if len(c.Families) == 0 {
		return errors.NewValidationError("families", "at least one family is required", c.Families)
	}
	if _, err := metrics.NewSet(c.Mode, c.Metrics...); err != nil {
		return err
	}
	seen := make(map[workflow.Family]bool, len(c.Families))
	for _, fc := range c.Families {
		if seen[fc.Family] {
			return errors.NewValidationError("families", "listed twice", fc.Family.String())
		}
		seen[fc.Family] = true
		switch fc.Grid.Type {
		case "", GridRegular, GridRandom, GridLatinHypercube, GridValues:
		default:
			return errors.NewValidationError("grid.type", "unknown grid type", fc.Grid.Type)
		}
	}
	return nil
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger   log.Logger
	recorder *tune.Recorder
}

// WithLogger sets the logger passed down to every stage.
func WithLogger(l log.Logger) Option { return func(o *options) { o.logger = l } }

// WithRecorder exports fit counts and durations.
func WithRecorder(r *tune.Recorder) Option { return func(o *options) { o.recorder = r } }

// FamilyResult is the outcome of one family.
type FamilyResult struct {
	Family  workflow.Family
	Tuning  *tune.Results
	Best    *tune.ConfigResult
	LastFit *tune.LastFitResult
	// Err is set when the family could not be compared, e.g. a SelectionError.
	Err error
}

// Comparison is the result of Run.
type Comparison struct {
	Config    Config
	Split     *resample.Split
	Resamples *resample.Resamples
	Families  []FamilyResult
}

// buildGrid resolves data-dependent ranges against the baked training
// design and builds the family's grid. Families without tunable
// parameters get nil, the empty grid.
func buildGrid(params grid.Set, spec GridSpec, info grid.DataInfo, seed uint64) (*grid.Grid, error) {
	if len(params) == 0 {
		return nil, nil
	}
	set, err := grid.Finalize(params, info)
	if err != nil {
		return nil, err
	}
	kind := spec.Type
	if kind == "" {
		kind = GridRegular
		if len(spec.Values) > 0 {
			kind = GridValues
		}
	}
	switch kind {
	case GridValues:
		return grid.Cartesian(set, spec.Values)
	case GridRandom:
		return grid.Random(set, spec.Size, seed)
	case GridLatinHypercube:
		return grid.LatinHypercube(set, spec.Size, seed)
	default:
		levels := spec.Levels
		if levels == 0 {
			levels = 3
		}
		return grid.Regular(set, levels)
	}
}

// Run compares the configured families on t. Per-family selection
// failures are recorded on the family and do not stop the run; schema,
// partition and usage errors do.
func Run(ctx context.Context, t *dataset.Table, cfg Config, opts ...Option) (*Comparison, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("compare")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !t.Has(cfg.Outcome) {
		return nil, errors.NewSchemaError("compare.Run", cfg.Outcome, "outcome column is missing")
	}
	if len(cfg.Predictors) == 0 {
		cfg.Predictors = recipe.AllPredictors(t, cfg.Outcome)
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = []recipe.Step{recipe.Dummy(), recipe.OrdinalScore(), recipe.ZeroVariance(), recipe.Normalize()}
	}
	rec := recipe.New(cfg.Outcome, cfg.Predictors, cfg.Steps...)
	if err := rec.Validate(t); err != nil {
		return nil, err
	}

	split, err := resample.InitialSplit(t, cfg.Prop, cfg.Strata, cfg.Seed)
	if err != nil {
		return nil, err
	}
	train := split.Training()
	rs, err := resample.VFold(train, cfg.Folds, cfg.Repeats, cfg.Strata, cfg.Seed)
	if err != nil {
		return nil, err
	}
	prepped, err := rec.Prep(train)
	if err != nil {
		return nil, err
	}
	info := grid.DataInfo{NRows: train.NRows(), NFeatures: len(prepped.Features)}
	o.logger.Info("comparison started",
		log.ModeKey, cfg.Mode.String(),
		log.SamplesKey, t.NRows(),
		log.FeaturesKey, info.NFeatures,
		log.FoldsKey, rs.Len(),
	)

	set, _ := metrics.NewSet(cfg.Mode, cfg.Metrics...)
	primary := set.Primary().Name
	cmp := &Comparison{Config: cfg, Split: split, Resamples: rs}
	for _, fc := range cfg.Families {
		fr := FamilyResult{Family: fc.Family}
		logger := o.logger.With(log.FamilyKey, fc.Family.String())

		wfOpts := []workflow.Option{workflow.WithArgs(fc.Args), workflow.WithSeed(cfg.Seed)}
		if fc.Model != nil {
			wfOpts = append(wfOpts, workflow.WithModel(fc.Model))
		}
		wf := workflow.New(fc.Family, cfg.Mode, rec, wfOpts...)
		g, err := buildGrid(wf.Params, fc.Grid, info, cfg.Seed)
		if err != nil {
			return nil, errors.Wrapf(err, "grid for %s", fc.Family)
		}
		if g != nil {
			wf.Params = g.Params
		}

		fr.Tuning, err = tune.Grid(ctx, wf, rs, g, tune.Options{
			Metrics:    set.Names(),
			Workers:    cfg.Workers,
			FitTimeout: cfg.FitTimeout,
			Logger:     logger,
			Recorder:   o.recorder,
		})
		if err != nil {
			if ctx.Err() != nil {
				cmp.Families = append(cmp.Families, fr)
				return cmp, err
			}
			return nil, errors.Wrapf(err, "tune %s", fc.Family)
		}

		best, err := fr.Tuning.SelectBest(primary)
		if err != nil {
			fr.Err = err
			logger.Warn("family could not be compared", "error", err.Error())
			cmp.Families = append(cmp.Families, fr)
			continue
		}
		fr.Best = &best
		final, err := wf.Finalize(best.Config)
		if err != nil {
			return nil, err
		}
		fr.LastFit, err = tune.LastFit(ctx, final, split, tune.WithMetrics(set.Names()...), tune.WithLogger(logger))
		if err != nil {
			if ctx.Err() != nil {
				cmp.Families = append(cmp.Families, fr)
				return cmp, err
			}
			fr.Err = errors.Wrap(err, "last fit")
			logger.Warn("last fit failed", "error", err.Error())
		}
		cmp.Families = append(cmp.Families, fr)
	}
	return cmp, nil
}

// Family returns the result of f.
func (c *Comparison) Family(f workflow.Family) (*FamilyResult, bool) {
	for i := range c.Families {
		if c.Families[i].Family == f {
			return &c.Families[i], true
		}
	}
	return nil, false
}

// Stages of a Summary.
const (
	StageResamples = "resamples"
	StageTrain     = "train"
	StageTest      = "test"
)

// Summary is one flat reporting record.
type Summary struct {
	Model    string  `json:"model" yaml:"model"`
	Stage    string  `json:"stage" yaml:"stage"`
	Metric   string  `json:"metric" yaml:"metric"`
	Mean     float64 `json:"mean" yaml:"mean"`
	StdErr   float64 `json:"std_err" yaml:"std_err"`
	N        int     `json:"n" yaml:"n"`
	Failures int     `json:"failures" yaml:"failures"`
	Config   string  `json:"config,omitempty" yaml:"config,omitempty"`
	Error    string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summaries flattens the comparison: per family, the resampled estimate of
// the selected configuration and its train and test metrics. A family that
// could not be compared yields one record carrying the error.
func (c *Comparison) Summaries() []Summary {
	var out []Summary
	for _, fr := range c.Families {
		name := fr.Family.String()
		failures := 0
		if fr.Tuning != nil {
			failures = fr.Tuning.Failures()
		}
		if fr.Best == nil {
			s := Summary{Model: name, Stage: StageResamples, Failures: failures, Error: "not tuned"}
			if fr.Tuning != nil && len(fr.Tuning.Metrics) > 0 {
				s.Metric = fr.Tuning.Metrics[0]
			}
			switch {
			case fr.Err != nil:
				s.Error = fr.Err.Error()
			case fr.Tuning != nil && fr.Tuning.Partial:
				s.Error = "interrupted before every fold ran"
			}
			out = append(out, s)
			continue
		}
		for _, m := range fr.Tuning.Metrics {
			sm, ok := fr.Best.Metrics[m]
			if !ok {
				continue
			}
			out = append(out, Summary{
				Model: name, Stage: StageResamples, Metric: m,
				Mean: sm.Mean, StdErr: sm.StdErr, N: sm.N,
				Failures: failures, Config: fr.Best.Label,
			})
		}
		if fr.LastFit == nil {
			if fr.Err != nil {
				out = append(out, Summary{Model: name, Stage: StageTest, Failures: failures, Error: fr.Err.Error()})
			}
			continue
		}
		for _, ev := range []tune.Evaluation{fr.LastFit.Train, fr.LastFit.Test} {
			for _, m := range fr.LastFit.Metrics {
				out = append(out, Summary{
					Model: name, Stage: string(ev.Stage), Metric: m,
					Mean: ev.Metrics[m], N: ev.Predictions.Len(),
					Failures: failures, Config: fr.Best.Label,
				})
			}
		}
	}
	return out
}

func (s Summary) String() string {
	if s.Error != "" {
		return fmt.Sprintf("%s/%s: %s", s.Model, s.Stage, s.Error)
	}
	return fmt.Sprintf("%s/%s %s=%.4g (±%.3g, n=%d)", s.Model, s.Stage, s.Metric, s.Mean, s.StdErr, s.N)
}
