package resample

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/dataset"
)

// DefaultBreaks is the number of quantile bins a continuous strata column is cut into.
const DefaultBreaks = 4

type options struct {
	breaks int
}

// Option configures InitialSplit and VFold.
type Option func(*options)

// WithBreaks sets the number of quantile bins used to stratify a continuous column.
func WithBreaks(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.breaks = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{breaks: DefaultBreaks}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// groups returns the row indices of t per stratum, in stratum order, each in
// ascending row order. An empty strata name yields a single group.
func groups(t *dataset.Table, strata string, breaks int) ([][]int, error) {
	n := t.NRows()
	if strata == "" {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}, nil
	}
	col, err := t.Column(strata)
	if err != nil {
		return nil, err
	}

	var codes []int
	var ngroups int
	if col.Kind.Categorical() {
		codes, ngroups = categoricalStrata(col)
	} else {
		codes, ngroups = quantileStrata(col, breaks)
	}

	out := make([][]int, ngroups)
	for r, g := range codes {
		out[g] = append(out[g], r)
	}
	return slices.DeleteFunc(out, func(g []int) bool { return len(g) == 0 }), nil
}

// categoricalStrata uses level codes; missing values form the last group.
func categoricalStrata(c *dataset.Column) ([]int, int) {
	codes := make([]int, c.Len())
	for i, code := range c.Codes {
		if code == dataset.Missing {
			code = len(c.Levels)
		}
		codes[i] = code
	}
	return codes, len(c.Levels) + 1
}

// quantileStrata cuts a continuous column at its empirical quantiles. A value
// equal to a break falls in the lower bin; NaN forms the last group.
func quantileStrata(c *dataset.Column, breaks int) ([]int, int) {
	sorted := make([]float64, 0, c.Len())
	for _, v := range c.Num {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)

	var cuts []float64
	if len(sorted) > 0 {
		for k := 1; k < breaks; k++ {
			q := stat.Quantile(float64(k)/float64(breaks), stat.Empirical, sorted, nil)
			if len(cuts) == 0 || q > cuts[len(cuts)-1] {
				cuts = append(cuts, q)
			}
		}
	}

	codes := make([]int, c.Len())
	for i, v := range c.Num {
		if math.IsNaN(v) {
			codes[i] = len(cuts) + 1
			continue
		}
		codes[i] = sort.SearchFloat64s(cuts, v)
	}
	return codes, len(cuts) + 2
}
