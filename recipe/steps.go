package recipe

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/preprocessing"
)

// selectColumns resolves a step's column list against t. With no explicit
// columns, every column accepted by match is selected.
func selectColumns(t *dataset.Table, explicit []string, match func(*dataset.Column) bool, op string) ([]*dataset.Column, error) {
	if len(explicit) == 0 {
		var out []*dataset.Column
		for _, c := range t.Columns() {
			if match(c) {
				out = append(out, c)
			}
		}
		return out, nil
	}
	out := make([]*dataset.Column, 0, len(explicit))
	for _, name := range explicit {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if !match(c) {
			return nil, errors.NewSchemaError(op, name, fmt.Sprintf("step does not apply to a %s column", c.Kind))
		}
		out = append(out, c)
	}
	return out, nil
}

func (s Step) prep(t *dataset.Table) (trained, error) {
	switch s.Kind {
	case StepDummy:
		return prepDummy(t, s.Columns)
	case StepOrdinalScore:
		return prepOrdinal(t, s.Columns)
	case StepZeroVariance:
		return prepZeroVariance(t, s.Columns)
	case StepNormalize:
		return prepScale(t, s.Columns, "normalize", func() model.Transformer {
			sc := preprocessing.NewStandardScalerDefault()
			sc.Unbiased = true
			return sc
		})
	case StepRange:
		return prepScale(t, s.Columns, "range", func() model.Transformer {
			return preprocessing.NewMinMaxScaler([2]float64{s.Lower, s.Upper})
		})
	default:
		return nil, errors.NewValidationError("step", "unknown step kind", s.Kind)
	}
}

// dummyStep holds the training levels of each encoded column.
type dummyStep struct {
	columns []string
	levels  map[string][]string
}

func prepDummy(t *dataset.Table, explicit []string) (trained, error) {
	cols, err := selectColumns(t, explicit, func(c *dataset.Column) bool {
		if len(explicit) > 0 {
			return c.Kind.Categorical()
		}
		return c.Kind == dataset.Nominal || c.Kind == dataset.Binary
	}, "Dummy")
	if err != nil {
		return nil, err
	}
	st := &dummyStep{levels: make(map[string][]string, len(cols))}
	for _, c := range cols {
		st.columns = append(st.columns, c.Name)
		st.levels[c.Name] = slices.Clone(c.Levels)
	}
	return st, nil
}

// indicatorName names the indicator of level in column col.
func indicatorName(col, level string) string { return col + "_" + level }

func (d *dummyStep) bake(t *dataset.Table) (*dataset.Table, error) {
	out := t
	for _, name := range d.columns {
		c, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		levels := d.levels[name]
		if !slices.Equal(c.Levels, levels) {
			return nil, errors.NewSchemaError("Dummy", name, fmt.Sprintf("levels %v differ from training levels %v", c.Levels, levels))
		}
		indicators := make([]*dataset.Column, 0, len(levels)-1)
		for k := 1; k < len(levels); k++ {
			v := make([]float64, c.Len())
			for i, code := range c.Codes {
				switch code {
				case dataset.Missing:
					v[i] = math.NaN()
				case k:
					v[i] = 1
				}
			}
			indicators = append(indicators, dataset.NewContinuous(indicatorName(name, levels[k]), v))
		}
		if out, err = out.Replace(name, indicators...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ordinalStep maps level codes to 1..k.
type ordinalStep struct {
	columns []string
	levels  map[string][]string
}

func prepOrdinal(t *dataset.Table, explicit []string) (trained, error) {
	cols, err := selectColumns(t, explicit, func(c *dataset.Column) bool {
		return c.Kind == dataset.Ordinal
	}, "OrdinalScore")
	if err != nil {
		return nil, err
	}
	st := &ordinalStep{levels: make(map[string][]string, len(cols))}
	for _, c := range cols {
		st.columns = append(st.columns, c.Name)
		st.levels[c.Name] = slices.Clone(c.Levels)
	}
	return st, nil
}

func (o *ordinalStep) bake(t *dataset.Table) (*dataset.Table, error) {
	out := t
	for _, name := range o.columns {
		c, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != dataset.Ordinal || !slices.Equal(c.Levels, o.levels[name]) {
			return nil, errors.NewSchemaError("OrdinalScore", name, "column is not ordinal with the training levels")
		}
		v := make([]float64, c.Len())
		for i, code := range c.Codes {
			if code == dataset.Missing {
				v[i] = math.NaN()
				continue
			}
			v[i] = float64(code + 1)
		}
		if out, err = out.Replace(name, dataset.NewContinuous(name, v)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dropStep removes columns found constant on the training rows.
type dropStep struct {
	columns []string
}

func prepZeroVariance(t *dataset.Table, explicit []string) (trained, error) {
	cols, err := selectColumns(t, explicit, func(*dataset.Column) bool { return true }, "ZeroVariance")
	if err != nil {
		return nil, err
	}
	st := &dropStep{}
	for _, c := range cols {
		if constant(c) {
			st.columns = append(st.columns, c.Name)
		}
	}
	return st, nil
}

// constant reports whether c has at most one distinct non-missing value.
func constant(c *dataset.Column) bool {
	first, seen := 0.0, false
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		v := c.Float(i)
		if !seen {
			first, seen = v, true
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}

func (d *dropStep) bake(t *dataset.Table) (*dataset.Table, error) {
	return t.Drop(d.columns...), nil
}

type scaleStep struct {
	columns []string
	scaler  model.Transformer
}

func prepScale(t *dataset.Table, explicit []string, op string, newScaler func() model.Transformer) (trained, error) {
	cols, err := selectColumns(t, explicit, func(c *dataset.Column) bool {
		return c.Kind == dataset.Continuous
	}, op)
	if err != nil {
		return nil, err
	}
	st := &scaleStep{}
	for _, c := range cols {
		st.columns = append(st.columns, c.Name)
	}
	if len(st.columns) == 0 {
		return st, nil
	}
	X, err := t.Matrix(st.columns)
	if err != nil {
		return nil, err
	}
	st.scaler = newScaler()
	if err := st.scaler.Fit(X); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *scaleStep) bake(t *dataset.Table) (*dataset.Table, error) {
	if len(s.columns) == 0 || t.NRows() == 0 {
		return t, nil
	}
	X, err := t.Matrix(s.columns)
	if err != nil {
		return nil, err
	}
	Z, err := s.scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	out := t
	for j, name := range s.columns {
		v := mat.Col(nil, j, Z)
		if out, err = out.Replace(name, dataset.NewContinuous(name, v)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
