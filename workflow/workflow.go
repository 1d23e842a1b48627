// Package workflow binds a preprocessing recipe to a model family.
//
// A Workflow is tuned over configurations of its family's parameters, then
// finalized with the selected configuration. Only a finalized workflow may
// score the testing partition, and no workflow can be fitted on it.
package workflow

import (
	"context"
	"fmt"
	"maps"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/recipe"
)

// Workflow is a recipe plus a model family in one mode.
type Workflow struct {
	Family Family
	Mode   model.Mode
	Recipe recipe.Recipe
	// Params are the parameters still to be tuned, in declared order.
	Params grid.Set
	// Bound holds values fixed by Finalize or WithArgs.
	Bound grid.Config
	Seed  uint64

	model     Model
	finalized bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithModel replaces the family's built-in strategy.
func WithModel(m Model) Option { return func(w *Workflow) { w.model = m } }

// WithParams replaces the tunable parameter set, e.g. to narrow a range.
func WithParams(s grid.Set) Option { return func(w *Workflow) { w.Params = s } }

// WithArgs fixes engine values that are not tuned, e.g. trees for a forest.
func WithArgs(c grid.Config) Option {
	return func(w *Workflow) { maps.Copy(w.Bound, c) }
}

// WithSeed sets the seed of randomized families.
func WithSeed(seed uint64) Option { return func(w *Workflow) { w.Seed = seed } }

// New creates a workflow whose tunable parameters are the family's.
func New(f Family, mode model.Mode, r recipe.Recipe, opts ...Option) *Workflow {
	w := &Workflow{Family: f, Mode: mode, Recipe: r, Params: f.Params(), Bound: grid.Config{}}
	for _, opt := range opts {
		opt(w)
	}
	if w.model == nil {
		w.model = ModelFor(f, w.Seed)
	}
	return w
}

func (w *Workflow) String() string {
	return fmt.Sprintf("%s %s workflow (%s)", w.Family, w.Mode, w.Recipe.Outcome)
}

// Finalized reports whether every tunable parameter has been bound.
func (w *Workflow) Finalized() bool { return w.finalized }

// checkValue validates v against p. An unresolved upper bound only checks
// the lower bound and integrality.
func checkValue(p grid.Param, v float64) error {
	if !p.Unknown {
		return p.Validate(v)
	}
	if math.IsNaN(v) || v < p.Lower || (p.Type == grid.Integer && v != math.Trunc(v)) {
		return errors.NewValidationError(p.ID, fmt.Sprintf("must be at least %g", p.Lower), v)
	}
	return nil
}

// Finalize returns a copy of w with cfg bound. cfg must bind every tunable
// parameter and nothing else.
func (w *Workflow) Finalize(cfg grid.Config) (*Workflow, error) {
	for _, p := range w.Params {
		v, ok := cfg[p.ID]
		if !ok {
			return nil, errors.NewUsageError("Finalize", fmt.Sprintf("parameter %s is not bound", p.ID), errors.ErrUnresolvedParam)
		}
		if err := checkValue(p, v); err != nil {
			return nil, err
		}
	}
	for id, v := range cfg {
		if _, ok := w.Params.Find(id); !ok {
			return nil, errors.NewValidationError(id, fmt.Sprintf("not a tunable parameter of %s", w.Family), v)
		}
	}
	out := *w
	out.Bound = maps.Clone(w.Bound)
	maps.Copy(out.Bound, cfg)
	out.Params = nil
	out.finalized = true
	return &out, nil
}

// resolve merges family defaults, bound values and cfg, in increasing
// precedence. Every tunable parameter must be bound by cfg.
func (w *Workflow) resolve(cfg grid.Config, nFeatures int) (grid.Config, error) {
	out := w.Family.Defaults(w.Mode, nFeatures)
	maps.Copy(out, w.Bound)
	for _, p := range w.Params {
		v, ok := cfg[p.ID]
		if !ok {
			return nil, errors.NewUsageError("Fit", fmt.Sprintf("parameter %s is not bound", p.ID), errors.ErrUnresolvedParam)
		}
		if err := checkValue(p, v); err != nil {
			return nil, err
		}
	}
	maps.Copy(out, cfg)
	return out, nil
}

// CheckOutcome verifies that t's outcome column suits the mode: continuous
// for regression, binary for classification.
func (w *Workflow) CheckOutcome(t *dataset.Table) error {
	c, err := t.Column(w.Recipe.Outcome)
	if err != nil {
		return err
	}
	switch {
	case w.Mode == model.Regression && c.Kind != dataset.Continuous:
		return errors.NewSchemaError("Workflow", c.Name, fmt.Sprintf("regression needs a continuous outcome, got %s", c.Kind))
	case w.Mode == model.Classification && c.Kind != dataset.Binary:
		return errors.NewSchemaError("Workflow", c.Name, fmt.Sprintf("classification needs a binary outcome, got %s", c.Kind))
	}
	return nil
}

// Fit preps the recipe on train and fits the model with cfg. A table tagged
// as the testing partition is rejected.
func (w *Workflow) Fit(ctx context.Context, train *dataset.Table, cfg grid.Config) (*Fitted, error) {
	if train.Role() == dataset.RoleTesting {
		return nil, errors.NewUsageError("Fit", "a workflow must not be fitted on the testing partition", errors.ErrLeakage)
	}
	if err := w.CheckOutcome(train); err != nil {
		return nil, err
	}
	prepped, err := w.Recipe.Prep(train)
	if err != nil {
		return nil, err
	}
	X, err := prepped.Matrix(train)
	if err != nil {
		return nil, err
	}
	y, err := prepped.Outcome(train)
	if err != nil {
		return nil, err
	}
	return w.FitDesign(ctx, prepped, X, y, cfg)
}

// FitDesign fits the model on a design already baked by prepped.
func (w *Workflow) FitDesign(ctx context.Context, prepped *recipe.Prepped, X *mat.Dense, y []float64, cfg grid.Config) (*Fitted, error) {
	_, c := X.Dims()
	params, err := w.resolve(cfg, c)
	if err != nil {
		return nil, err
	}
	m, err := w.model.Fit(ctx, X, y, w.Mode, params)
	if err != nil {
		return nil, err
	}
	return &Fitted{Workflow: w, Params: params, Prepped: prepped, model: m}, nil
}

// Fitted is a workflow trained on one table.
type Fitted struct {
	Workflow *Workflow
	// Params are every value the model was fitted with, defaults included.
	Params  grid.Config
	Prepped *recipe.Prepped

	model Trained
}

// Model returns the trained estimator.
func (f *Fitted) Model() Trained { return f.model }

// PredictDesign predicts a baked design. prob is nil for regression.
func (f *Fitted) PredictDesign(X mat.Matrix) (estimate, prob []float64, err error) {
	if estimate, err = f.model.Predict(X); err != nil {
		return nil, nil, err
	}
	if f.Workflow.Mode == model.Classification {
		if prob, err = f.model.PredictProb(X); err != nil {
			return nil, nil, err
		}
	}
	return estimate, prob, nil
}

// Predict bakes t and predicts it. Truth is filled when t carries the
// outcome. The testing partition may only be predicted by a finalized
// workflow.
func (f *Fitted) Predict(t *dataset.Table) (metrics.Predictions, error) {
	if t.Role() == dataset.RoleTesting && !f.Workflow.finalized {
		return metrics.Predictions{}, errors.NewUsageError("Predict",
			"the testing partition may only be scored by a finalized workflow", errors.ErrLeakage)
	}
	X, err := f.Prepped.Matrix(t)
	if err != nil {
		return metrics.Predictions{}, err
	}
	est, prob, err := f.PredictDesign(X)
	if err != nil {
		return metrics.Predictions{}, err
	}
	p := metrics.Predictions{Estimate: est, Prob: prob}
	if t.Has(f.Workflow.Recipe.Outcome) {
		if p.Truth, err = f.Prepped.Outcome(t); err != nil {
			return metrics.Predictions{}, err
		}
	}
	return p, nil
}
