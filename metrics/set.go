package metrics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Direction says whether smaller or larger metric values are better.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Predictions pairs outcomes with a model's estimates on the same rows.
// For classification Truth and Estimate hold class codes (1 is the event)
// and Prob holds the event probability.
type Predictions struct {
	Truth    []float64
	Estimate []float64
	Prob     []float64
}

// Len returns the number of rows.
func (p Predictions) Len() int { return len(p.Truth) }

// Residuals returns Truth - Estimate.
func (p Predictions) Residuals() []float64 {
	out := make([]float64, len(p.Truth))
	for i := range out {
		out[i] = p.Truth[i] - p.Estimate[i]
	}
	return out
}

// Metric is a named scoring function for one mode.
type Metric struct {
	Name      string
	Mode      model.Mode
	Direction Direction

	fn func(truth, estimate *mat.VecDense) (float64, error)
	// usesProb selects Predictions.Prob instead of Estimate.
	usesProb bool
}

// Compute scores p.
func (m Metric) Compute(p Predictions) (float64, error) {
	est := p.Estimate
	if m.usesProb {
		est = p.Prob
		if est == nil {
			return 0, errors.NewValueError(m.Name, "class probabilities are required")
		}
	}
	if len(p.Truth) == 0 {
		return 0, errors.NewValueError(m.Name, "empty predictions")
	}
	if len(est) != len(p.Truth) {
		return 0, errors.NewDimensionError(m.Name, len(p.Truth), len(est), 0)
	}
	return m.fn(mat.NewVecDense(len(p.Truth), p.Truth), mat.NewVecDense(len(est), est))
}

// Better reports whether a is strictly better than b.
func (m Metric) Better(a, b float64) bool {
	if m.Direction == Maximize {
		return a > b
	}
	return a < b
}

var catalogue = map[string]Metric{
	"rmse": {Name: "rmse", Mode: model.Regression, Direction: Minimize, fn: RMSE},
	"mse":  {Name: "mse", Mode: model.Regression, Direction: Minimize, fn: MSE},
	"mae":  {Name: "mae", Mode: model.Regression, Direction: Minimize, fn: MAE},
	"rsq":  {Name: "rsq", Mode: model.Regression, Direction: Maximize, fn: R2Score},
	"mape": {Name: "mape", Mode: model.Regression, Direction: Minimize, fn: MAPE},

	"accuracy":             {Name: "accuracy", Mode: model.Classification, Direction: Maximize, fn: Accuracy},
	"classification_error": {Name: "classification_error", Mode: model.Classification, Direction: Minimize, fn: ClassificationError},
	"roc_auc":              {Name: "roc_auc", Mode: model.Classification, Direction: Maximize, fn: AUC, usesProb: true},
	"mn_log_loss":          {Name: "mn_log_loss", Mode: model.Classification, Direction: Minimize, fn: BinaryLogLoss, usesProb: true},
}

// Lookup returns the metric registered under name.
func Lookup(name string) (Metric, error) {
	m, ok := catalogue[strings.ToLower(name)]
	if !ok {
		return Metric{}, errors.NewValidationError("metric", "unknown metric", name)
	}
	return m, nil
}

// Set is an ordered list of metrics; the first is primary.
type Set []Metric

// DefaultNames returns the metrics used when none are requested.
func DefaultNames(mode model.Mode) []string {
	if mode == model.Classification {
		return []string{"roc_auc", "accuracy"}
	}
	return []string{"rmse", "rsq"}
}

// NewSet builds a metric set for mode. With no names the defaults are used.
// Every metric must belong to mode and appear once.
func NewSet(mode model.Mode, names ...string) (Set, error) {
	if len(names) == 0 {
		names = DefaultNames(mode)
	}
	set := make(Set, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		m, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if m.Mode != mode {
			return nil, errors.NewValidationError("metric", fmt.Sprintf("%s is a %s metric, not %s", m.Name, m.Mode, mode), name)
		}
		if seen[m.Name] {
			return nil, errors.NewValidationError("metric", "listed twice", name)
		}
		seen[m.Name] = true
		set = append(set, m)
	}
	return set, nil
}

// Primary returns the first metric.
func (s Set) Primary() Metric { return s[0] }

// Names returns the metric names in order.
func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = m.Name
	}
	return out
}

// Find returns the metric called name.
func (s Set) Find(name string) (Metric, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Compute scores p with every metric. The first failing metric aborts.
func (s Set) Compute(p Predictions) (map[string]float64, error) {
	out := make(map[string]float64, len(s))
	for _, m := range s {
		v, err := m.Compute(p)
		if err != nil {
			return nil, errors.Wrapf(err, "metric %s", m.Name)
		}
		out[m.Name] = v
	}
	return out, nil
}
