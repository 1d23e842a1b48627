package tune

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Status is the aggregation state of one configuration.
type Status int

const (
	// StatusComplete means every fold has an outcome and at least one succeeded.
	StatusComplete Status = iota
	// StatusExcluded means every fold failed.
	StatusExcluded
	// StatusIncomplete means some folds were never run because the search was cancelled.
	StatusIncomplete
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusExcluded:
		return "excluded"
	case StatusIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// tieTolerance is the relative difference below which two metric means tie.
const tieTolerance = 1e-12

// Summary aggregates one metric over the successful folds of a configuration.
// StdErr is sd/sqrt(N) with the sample SD, and 0 when N < 2.
type Summary struct {
	Mean   float64
	StdErr float64
	N      int
}

// FoldScore is the outcome of one (configuration, fold) pair. Err holds the
// failure reason as text so results survive gob encoding.
type FoldScore struct {
	Fold    string
	Metrics map[string]float64
	Status  parallel.Status
	Err     string
}

// ConfigResult is a scored configuration.
type ConfigResult struct {
	ID       string
	Index    int
	Config   grid.Config
	Label    string
	Metrics  map[string]Summary
	Folds    []FoldScore
	Failures int
	Status   Status
}

// Ranked reports whether the configuration takes part in ranking.
func (c *ConfigResult) Ranked() bool { return c.Status == StatusComplete }

// Results is the outcome of one grid search. It holds plain data only: metric
// names rather than functions and error text rather than error values.
type Results struct {
	RunID   string
	Family  string
	Mode    model.Mode
	Params  grid.Set
	Metrics []string
	Folds   int
	Configs []ConfigResult
	// Partial is set when the search was cancelled before every pair ran.
	Partial bool
}

// metric resolves name against the result's metric set; "" is the primary metric.
func (r *Results) metric(name string) (metrics.Metric, error) {
	if len(r.Metrics) == 0 {
		return metrics.Metric{}, errors.NewSelectionError(r.Family, name, "no metrics were computed")
	}
	if name == "" {
		name = r.Metrics[0]
	}
	if !slices.Contains(r.Metrics, name) {
		return metrics.Metric{}, errors.NewSelectionError(r.Family, name,
			fmt.Sprintf("metric was not computed; available: %v", r.Metrics))
	}
	return metrics.Lookup(name)
}

func ties(a, b float64) bool {
	return math.Abs(a-b) <= tieTolerance*math.Max(math.Abs(a), math.Abs(b))
}

// Rank orders the ranked configurations by metric: best mean first, ties
// broken by simplicity in declared parameter order, then by grid order.
// A configuration with a non-finite mean is never ranked.
func (r *Results) Rank(metric string) ([]ConfigResult, error) {
	m, err := r.metric(metric)
	if err != nil {
		return nil, err
	}
	var out []ConfigResult
	for _, c := range r.Configs {
		if s, ok := c.Metrics[m.Name]; c.Ranked() && ok && !math.IsNaN(s.Mean) && !math.IsInf(s.Mean, 0) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b ConfigResult) int {
		x, y := a.Metrics[m.Name].Mean, b.Metrics[m.Name].Mean
		if !ties(x, y) {
			if m.Better(x, y) {
				return -1
			}
			return 1
		}
		if s := r.Params.CompareSimplicity(a.Config, b.Config); s != 0 {
			return s
		}
		return a.Index - b.Index
	})
	return out, nil
}

// ShowBest returns the top n ranked configurations.
func (r *Results) ShowBest(metric string, n int) ([]ConfigResult, error) {
	ranked, err := r.Rank(metric)
	if err != nil {
		return nil, err
	}
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// SelectBest returns the best configuration by metric. A search with no
// ranked configuration yields a SelectionError.
func (r *Results) SelectBest(metric string) (ConfigResult, error) {
	ranked, err := r.Rank(metric)
	if err != nil {
		return ConfigResult{}, err
	}
	if len(ranked) == 0 {
		m, _ := r.metric(metric)
		return ConfigResult{}, errors.NewSelectionError(r.Family, m.Name,
			fmt.Sprintf("none of %d configurations has a successful fold", len(r.Configs)))
	}
	best := ranked[0]
	best.Config = maps.Clone(best.Config)
	return best, nil
}

// Failures returns the total number of failed pairs.
func (r *Results) Failures() int {
	var n int
	for _, c := range r.Configs {
		n += c.Failures
	}
	return n
}
