package tree

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
)

// DecisionTreeRegressor is a CART regression tree using squared error.
type DecisionTreeRegressor struct {
	model.StateManager
	params
	fitted
}

// NewDecisionTreeRegressor creates a regression tree. Defaults grow the tree
// until nodes are pure or hold a single row.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{params: params{criterion: "squared_error", minSamplesSplit: 2, minSamplesLeaf: 1}}
	for _, opt := range opts {
		opt(&t.params)
	}
	return t
}

// Fit grows the tree on X and y.
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	yv, err := columnLabels("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := t.validate(false); err != nil {
		return err
	}
	t.fitted = grow(t.params, X, yv, 0)
	r, c := X.Dims()
	t.SetDimensions(c, r)
	t.SetFitted()
	return nil
}

// Predict returns the mean outcome of the leaf reached by each row.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := t.CheckFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, t.apply(X, i).Value[0])
	}
	return out, nil
}

// GetFeatureImportances returns the normalized total impurity decrease per feature.
func (t *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return slices.Clone(t.Importances)
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (t *DecisionTreeRegressor) GetDepth() int { return t.Depth }

// GetNLeaves returns the number of leaves.
func (t *DecisionTreeRegressor) GetNLeaves() int { return t.NLeaves }

// GetParams returns the hyperparameters.
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} { return t.get() }

// SetParams updates hyperparameters by name.
func (t *DecisionTreeRegressor) SetParams(values map[string]interface{}) error {
	return t.set(values)
}

func (t *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_split=%d, ccp_alpha=%g)", t.maxDepth, t.minSamplesSplit, t.ccpAlpha)
}
