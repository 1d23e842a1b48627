// Package baseline provides null models that ignore every predictor. They set
// the floor any real model family must beat.
package baseline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

func outcome(op string, X, y mat.Matrix) ([]float64, error) {
	ry, cy := y.Dims()
	if ry == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if r, _ := X.Dims(); r != ry {
		return nil, errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return nil, errors.NewValueError(op, "y must be a column vector")
	}
	out := mat.Col(nil, 0, y)
	if err := errors.CheckNumericalStability(op, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// NullRegressor predicts the training mean for every row.
type NullRegressor struct {
	model.StateManager
	Mean float64
}

// NewNullRegressor creates a NullRegressor.
func NewNullRegressor() *NullRegressor { return &NullRegressor{} }

// Fit records the mean of y. X only fixes the expected number of columns.
func (m *NullRegressor) Fit(X, y mat.Matrix) error {
	yv, err := outcome("NullRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	var sum float64
	for _, v := range yv {
		sum += v
	}
	m.Mean = sum / float64(len(yv))
	r, c := X.Dims()
	m.SetDimensions(c, r)
	m.SetFitted()
	return nil
}

// Predict returns the training mean for each row of X.
func (m *NullRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("NullRegressor", "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.Mean)
	}
	return out, nil
}

func (m *NullRegressor) String() string { return fmt.Sprintf("NullRegressor(mean=%g)", m.Mean) }

// NullClassifier predicts the training majority class. Its class 1
// probability is the training prevalence of class 1.
type NullClassifier struct {
	model.StateManager
	Prevalence float64
	Majority   float64
}

// NewNullClassifier creates a NullClassifier.
func NewNullClassifier() *NullClassifier { return &NullClassifier{} }

// Fit records the prevalence of class 1 in y, whose values must be 0 or 1.
// A tie makes class 0 the majority.
func (m *NullClassifier) Fit(X, y mat.Matrix) error {
	yv, err := outcome("NullClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	var ones float64
	for _, v := range yv {
		switch v {
		case 0:
		case 1:
			ones++
		default:
			return errors.NewValueError("NullClassifier.Fit", fmt.Sprintf("labels must be 0 or 1, got %v", v))
		}
	}
	m.Prevalence = ones / float64(len(yv))
	m.Majority = 0
	if m.Prevalence > 0.5 {
		m.Majority = 1
	}
	r, c := X.Dims()
	m.SetDimensions(c, r)
	m.SetFitted()
	return nil
}

// Predict returns the majority class for each row of X.
func (m *NullClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("NullClassifier", "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.Majority)
	}
	return out, nil
}

// PredictProba returns [1-prevalence, prevalence] for each row of X.
func (m *NullClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("NullClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1-m.Prevalence)
		out.Set(i, 1, m.Prevalence)
	}
	return out, nil
}

func (m *NullClassifier) String() string {
	return fmt.Sprintf("NullClassifier(prevalence=%g)", m.Prevalence)
}
