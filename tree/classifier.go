package tree

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// DecisionTreeClassifier is a CART classification tree. Class labels are the
// integers 0..k-1.
type DecisionTreeClassifier struct {
	model.StateManager
	params
	fitted

	// NClasses はクラス数（最大ラベル+1）
	NClasses int
}

// NewDecisionTreeClassifier creates a classification tree using the gini index.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := &DecisionTreeClassifier{params: params{criterion: "gini", minSamplesSplit: 2, minSamplesLeaf: 1}}
	for _, opt := range opts {
		opt(&t.params)
	}
	return t
}

// classCount validates integer labels and returns the number of classes.
func classCount(op string, y []float64) (int, error) {
	k := 0
	for _, v := range y {
		if v < 0 || v != math.Trunc(v) {
			return 0, errors.NewValueError(op, fmt.Sprintf("class labels must be non-negative integers, got %v", v))
		}
		k = max(k, int(v)+1)
	}
	return max(k, 2), nil
}

// Fit grows the tree on X and class labels y.
func (t *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	yv, err := columnLabels("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := t.validate(true); err != nil {
		return err
	}
	k, err := classCount("DecisionTreeClassifier.Fit", yv)
	if err != nil {
		return err
	}
	t.NClasses = k
	t.fitted = grow(t.params, X, yv, k)
	r, c := X.Dims()
	t.SetDimensions(c, r)
	t.SetFitted()
	return nil
}

// PredictProba returns the class proportions of the leaf reached by each row.
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := t.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := t.CheckFeatures("DecisionTreeClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, t.NClasses, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, t.apply(X, i).Value)
	}
	return out, nil
}

// argmax returns the index of the largest value; ties go to the lower index.
func argmax(v []float64) int {
	best := 0
	for k := range v {
		if v[k] > v[best] {
			best = k
		}
	}
	return best
}

// Predict returns the most frequent class of the leaf reached by each row.
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, t.NClasses)
	for i := 0; i < r; i++ {
		mat.Row(row, i, proba)
		out.Set(i, 0, float64(argmax(row)))
	}
	return out, nil
}

// Score returns the accuracy on X and y, or 0 when prediction fails.
func (t *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := t.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := y.Dims()
	var correct int
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetFeatureImportances returns the normalized total impurity decrease per feature.
func (t *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return slices.Clone(t.Importances)
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (t *DecisionTreeClassifier) GetDepth() int { return t.Depth }

// GetNLeaves returns the number of leaves.
func (t *DecisionTreeClassifier) GetNLeaves() int { return t.NLeaves }

// GetParams returns the hyperparameters.
func (t *DecisionTreeClassifier) GetParams() map[string]interface{} { return t.get() }

// SetParams updates hyperparameters by name.
func (t *DecisionTreeClassifier) SetParams(values map[string]interface{}) error {
	return t.set(values)
}

func (t *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d, ccp_alpha=%g)", t.criterion, t.maxDepth, t.ccpAlpha)
}
