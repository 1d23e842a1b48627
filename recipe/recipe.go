// Package recipe turns a cleaned table into a numeric design matrix.
//
// A Recipe is plain data: the outcome, an explicit predictor list and an
// ordered list of steps. Prep learns every step on the training rows and
// returns a Prepped recipe whose Bake applies the same transformations to
// any table with the same predictors.
package recipe

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// StepKind identifies a preprocessing step.
type StepKind int

const (
	// StepDummy replaces a categorical column by k-1 indicator columns, the
	// first level being the reference.
	StepDummy StepKind = iota
	// StepOrdinalScore replaces an ordinal column by its level number (1..k).
	StepOrdinalScore
	// StepZeroVariance drops predictors with a single distinct training value.
	StepZeroVariance
	// StepNormalize centers and scales continuous predictors with the
	// training mean and sample standard deviation.
	StepNormalize
	// StepRange rescales continuous predictors to [Lower, Upper].
	StepRange
)

var stepNames = map[StepKind]string{
	StepDummy:        "dummy",
	StepOrdinalScore: "ordinalscore",
	StepZeroVariance: "zv",
	StepNormalize:    "normalize",
	StepRange:        "range",
}

func (k StepKind) String() string {
	if s, ok := stepNames[k]; ok {
		return s
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// ParseStepKind returns the step kind called s.
func ParseStepKind(s string) (StepKind, error) {
	for k, name := range stepNames {
		if s == name {
			return k, nil
		}
	}
	return 0, errors.NewValidationError("step", "unknown recipe step", s)
}

// Step is one declared transformation. An empty Columns selects every
// predictor the step applies to at the point it runs.
type Step struct {
	Kind    StepKind
	Columns []string
	Lower   float64
	Upper   float64
}

// Dummy encodes nominal and binary predictors, or the named columns.
func Dummy(cols ...string) Step { return Step{Kind: StepDummy, Columns: cols} }

// OrdinalScore scores ordinal predictors, or the named columns.
func OrdinalScore(cols ...string) Step { return Step{Kind: StepOrdinalScore, Columns: cols} }

// ZeroVariance removes constant predictors.
func ZeroVariance(cols ...string) Step { return Step{Kind: StepZeroVariance, Columns: cols} }

// Normalize standardizes continuous predictors.
func Normalize(cols ...string) Step { return Step{Kind: StepNormalize, Columns: cols} }

// Range rescales continuous predictors to [lower, upper].
func Range(lower, upper float64, cols ...string) Step {
	return Step{Kind: StepRange, Columns: cols, Lower: lower, Upper: upper}
}

func (s Step) String() string {
	if len(s.Columns) == 0 {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%v)", s.Kind, s.Columns)
}

// Recipe declares how a table becomes a design matrix.
type Recipe struct {
	Outcome    string
	Predictors []string
	Steps      []Step
}

// New returns a recipe for outcome over an explicit predictor list.
func New(outcome string, predictors []string, steps ...Step) Recipe {
	return Recipe{Outcome: outcome, Predictors: slices.Clone(predictors), Steps: steps}
}

// AllPredictors lists every column of t except the outcome and the excluded
// names, in schema order.
func AllPredictors(t *dataset.Table, outcome string, exclude ...string) []string {
	var out []string
	for _, name := range t.Names() {
		if name != outcome && !slices.Contains(exclude, name) {
			out = append(out, name)
		}
	}
	return out
}

// Validate checks the recipe against a table schema.
func (r Recipe) Validate(t *dataset.Table) error {
	if r.Outcome == "" {
		return errors.NewValidationError("outcome", "must be set", r.Outcome)
	}
	if !t.Has(r.Outcome) {
		return errors.NewSchemaError("Recipe", r.Outcome, "outcome column is missing")
	}
	if len(r.Predictors) == 0 {
		return errors.NewValidationError("predictors", "at least one predictor is required", r.Predictors)
	}
	for _, p := range r.Predictors {
		if p == r.Outcome {
			return errors.NewSchemaError("Recipe", p, "outcome listed as a predictor")
		}
		if !t.Has(p) {
			return errors.NewSchemaError("Recipe", p, "predictor column is missing")
		}
	}
	return nil
}

// trained is a step with its learned state.
type trained interface {
	bake(t *dataset.Table) (*dataset.Table, error)
}

// Prepped is a recipe trained on a training table.
type Prepped struct {
	Recipe   Recipe
	Features []string
	steps    []trained
}

// Prep learns every step on train. Steps run in order, each seeing the
// training table as transformed by the steps before it. A table tagged
// dataset.RoleTesting is rejected.
func (r Recipe) Prep(train *dataset.Table) (*Prepped, error) {
	if train.Role() == dataset.RoleTesting {
		return nil, errors.NewUsageError("Prep", "preprocessing must not be learned from the testing partition", errors.ErrLeakage)
	}
	if err := r.Validate(train); err != nil {
		return nil, err
	}
	cur, err := train.Select(r.Predictors...)
	if err != nil {
		return nil, err
	}

	p := &Prepped{Recipe: r}
	for _, s := range r.Steps {
		ts, err := s.prep(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "prep step %s", s)
		}
		if cur, err = ts.bake(cur); err != nil {
			return nil, errors.Wrapf(err, "bake step %s", s)
		}
		p.steps = append(p.steps, ts)
	}
	p.Features = cur.Names()
	return p, nil
}

// Bake applies the trained steps to the predictors of t and returns the
// transformed predictor table.
func (p *Prepped) Bake(t *dataset.Table) (*dataset.Table, error) {
	cur, err := t.Select(p.Recipe.Predictors...)
	if err != nil {
		return nil, err
	}
	for i, ts := range p.steps {
		if cur, err = ts.bake(cur); err != nil {
			return nil, errors.Wrapf(err, "bake step %s", p.Recipe.Steps[i])
		}
	}
	return cur.WithRole(t.Role()), nil
}

// Matrix bakes t and returns the design matrix. Every baked predictor must
// be continuous; a categorical predictor left unencoded is a SchemaError.
func (p *Prepped) Matrix(t *dataset.Table) (*mat.Dense, error) {
	baked, err := p.Bake(t)
	if err != nil {
		return nil, err
	}
	for _, c := range baked.Columns() {
		if c.Kind.Categorical() {
			return nil, errors.NewSchemaError("Matrix", c.Name,
				fmt.Sprintf("%s predictor is not encoded; add a dummy or ordinal score step", c.Kind))
		}
	}
	if len(p.Features) == 0 {
		return nil, errors.NewSchemaError("Matrix", "", "no predictors remain after preprocessing")
	}
	return baked.Matrix(p.Features)
}

// Outcome returns the outcome of t as a vector: values for a continuous
// outcome, level codes for a categorical one.
func (p *Prepped) Outcome(t *dataset.Table) ([]float64, error) {
	return OutcomeVector(t, p.Recipe.Outcome)
}

// OutcomeVector extracts a numeric outcome from t. Missing values are a
// SchemaError.
func OutcomeVector(t *dataset.Table, name string) ([]float64, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.MissingCount() > 0 {
		return nil, errors.NewSchemaError("Outcome", name, "outcome has missing values")
	}
	y := make([]float64, c.Len())
	for i := range y {
		y[i] = c.Float(i)
	}
	return y, nil
}
