// Package grid describes hyperparameter domains and enumerates candidate
// configurations over them.
//
// A Param's range is kept on its transformed scale: a Log10 penalty with
// Lower -10 and Upper 0 covers 1e-10..1. Data-dependent upper bounds are
// marked Unknown and must be resolved with Finalize before any grid is built.
package grid

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Type is the value type of a parameter.
type Type int

const (
	Double Type = iota
	Integer
)

func (t Type) String() string {
	if t == Integer {
		return "integer"
	}
	return "double"
}

// Scale is the transformation the range is expressed on.
type Scale int

const (
	Identity Scale = iota
	Log10
)

// Direction says which end of a range gives the simpler model.
type Direction int

const (
	// LargerIsSimpler: more regularization, larger leaves.
	LargerIsSimpler Direction = 1
	// SmallerIsSimpler: shallower trees, fewer variables or trees.
	SmallerIsSimpler Direction = -1
)

// Param is one tunable hyperparameter.
type Param struct {
	ID      string
	Type    Type
	Lower   float64
	Upper   float64
	Scale   Scale
	Unknown bool // upper bound resolved from the data by Finalize
	Simpler Direction
}

// Parameter catalogue. IDs are the names the model families bind.
func Penalty() Param {
	return Param{ID: "penalty", Type: Double, Lower: -10, Upper: 0, Scale: Log10, Simpler: LargerIsSimpler}
}

func Mixture() Param {
	return Param{ID: "mixture", Type: Double, Lower: 0, Upper: 1, Simpler: LargerIsSimpler}
}

func CostComplexity() Param {
	return Param{ID: "cost_complexity", Type: Double, Lower: -10, Upper: -1, Scale: Log10, Simpler: LargerIsSimpler}
}

func TreeDepth() Param {
	return Param{ID: "tree_depth", Type: Integer, Lower: 1, Upper: 30, Simpler: SmallerIsSimpler}
}

func MinN() Param {
	return Param{ID: "min_n", Type: Integer, Lower: 2, Upper: 40, Simpler: LargerIsSimpler}
}

func Trees() Param {
	return Param{ID: "trees", Type: Integer, Lower: 1, Upper: 2000, Simpler: SmallerIsSimpler}
}

// Mtry is the number of predictors sampled at each split; its upper bound
// is the number of predictor columns.
func Mtry() Param {
	return Param{ID: "mtry", Type: Integer, Lower: 1, Upper: math.NaN(), Unknown: true, Simpler: SmallerIsSimpler}
}

// WithRange returns p with a new range on its transformed scale.
func (p Param) WithRange(lower, upper float64) Param {
	p.Lower, p.Upper = lower, upper
	p.Unknown = false
	return p
}

// natural maps a transformed-scale value to the parameter's own units.
func (p Param) natural(u float64) float64 {
	v := u
	if p.Scale == Log10 {
		v = math.Pow(10, u)
	}
	if p.Type == Integer {
		v = math.Round(v)
	}
	return v
}

// Bounds returns the range in the parameter's own units.
func (p Param) Bounds() (lo, hi float64) {
	if p.Scale == Log10 {
		return math.Pow(10, p.Lower), math.Pow(10, p.Upper)
	}
	return p.Lower, p.Upper
}

// Validate checks that v, in the parameter's own units, lies in the domain.
func (p Param) Validate(v float64) error {
	if p.Unknown {
		return errors.NewUsageError("grid", fmt.Sprintf("parameter %s has an unresolved range", p.ID), errors.ErrUnresolvedParam)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewValidationError(p.ID, "must be finite", v)
	}
	if p.Type == Integer && v != math.Trunc(v) {
		return errors.NewValidationError(p.ID, "must be an integer", v)
	}
	lo, hi := p.Bounds()
	// log10 ranges are compared with a relative tolerance for pow rounding.
	tol := 1e-12 * math.Max(1, math.Abs(hi))
	if v < lo-tol || v > hi+tol {
		return errors.NewValidationError(p.ID, fmt.Sprintf("must be in [%g, %g]", lo, hi), v)
	}
	return nil
}

func (p Param) String() string {
	if p.Unknown {
		return fmt.Sprintf("%s (%s, [%g, ?])", p.ID, p.Type, p.Lower)
	}
	lo, hi := p.Bounds()
	return fmt.Sprintf("%s (%s, [%g, %g])", p.ID, p.Type, lo, hi)
}
