package workflow

import (
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Family is the closed set of model families compared by a run.
type Family int

const (
	// Baseline ignores the predictors: the training mean or majority class.
	Baseline Family = iota
	// LinearRegression is least squares for regression and unpenalized
	// logistic regression for classification.
	LinearRegression
	// RegularizedLinear adds an elastic net penalty (penalty, mixture).
	RegularizedLinear
	// DecisionTree is a CART tree (cost_complexity, tree_depth, min_n).
	DecisionTree
	// RandomForest is a bagged forest with feature sampling (mtry, min_n).
	RandomForest
)

// Families lists every family in report order.
var Families = []Family{Baseline, LinearRegression, RegularizedLinear, DecisionTree, RandomForest}

var familyNames = map[Family]string{
	Baseline:          "baseline",
	LinearRegression:  "linear",
	RegularizedLinear: "regularized_linear",
	DecisionTree:      "decision_tree",
	RandomForest:      "random_forest",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily returns the family called s.
func ParseFamily(s string) (Family, error) {
	for f, name := range familyNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, errors.NewValidationError("family", "unknown model family", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Params returns the tunable parameters of the family in declared order.
func (f Family) Params() grid.Set {
	switch f {
	case RegularizedLinear:
		return grid.Set{grid.Penalty(), grid.Mixture()}
	case DecisionTree:
		return grid.Set{grid.CostComplexity(), grid.TreeDepth(), grid.MinN()}
	case RandomForest:
		return grid.Set{grid.Mtry(), grid.MinN()}
	default:
		return nil
	}
}

// Defaults returns the engine values used for parameters a configuration
// does not bind. nFeatures is the width of the baked design.
func (f Family) Defaults(mode model.Mode, nFeatures int) grid.Config {
	switch f {
	case RegularizedLinear:
		return grid.Config{"penalty": 0.01, "mixture": 1}
	case DecisionTree:
		return grid.Config{"cost_complexity": 0.01, "tree_depth": 30, "min_n": 20}
	case RandomForest:
		minN := 5.0
		if mode == model.Classification {
			minN = 10
		}
		return grid.Config{
			"mtry":  math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))),
			"min_n": minN,
			"trees": 500,
		}
	default:
		return grid.Config{}
	}
}
