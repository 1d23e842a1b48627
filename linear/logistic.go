package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// LogisticRegression is a binary logistic regression classifier with an
// optional elastic net penalty on the standardized coefficients.
//
// Each iteration replaces the log-likelihood by its quadratic approximation
// at the current fit (iteratively reweighted least squares) and minimizes the
// penalized weighted least squares problem by coordinate descent. With
// Penalty zero this is the ordinary maximum likelihood fit.
type LogisticRegression struct {
	model.StateManager

	// Penalty は正則化の強さ λ
	Penalty float64
	// Mixture は L1 罰則の割合 α
	Mixture float64

	Coef      []float64
	Intercept float64
	NIter     int

	maxIter int
	tol     float64
}

// NewLogisticRegression creates an unpenalized LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{Mixture: 1, maxIter: 100, tol: 1e-8}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// checkBinary returns a ValueError unless y holds only 0 and 1 with both
// classes present.
func checkBinary(op string, y []float64) error {
	var ones int
	for _, v := range y {
		switch v {
		case 0:
		case 1:
			ones++
		default:
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v", v))
		}
	}
	if ones == 0 || ones == len(y) {
		return errors.NewValueError(op, "y contains a single class")
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}

// deviance returns −2 times the binomial log-likelihood.
func deviance(y, p []float64) float64 {
	var d float64
	for i := range y {
		d -= 2 * (y[i]*errors.StabilizeLog(p[i]) + (1-y[i])*errors.StabilizeLog(1-p[i]))
	}
	return d
}

// Fit trains the logistic regression model. y holds class codes 0 and 1.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	yv, err := checkXY("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	if err := checkBinary("LogisticRegression.Fit", yv); err != nil {
		return err
	}
	if err := checkPenalty(lr.Penalty, lr.Mixture); err != nil {
		return err
	}
	n, c := X.Dims()

	sc, cols, err := standardize(X)
	if err != nil {
		return err
	}

	var ones float64
	for _, v := range yv {
		ones += v
	}
	prev := ones / float64(n)
	b0 := math.Log(prev / (1 - prev))
	b := make([]float64, c)

	eta := make([]float64, n)
	p := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)
	refresh := func() {
		for i := range eta {
			v := b0
			for j, col := range cols {
				v += col[i] * b[j]
			}
			eta[i] = v
			p[i] = sigmoid(v)
		}
	}

	refresh()
	dev := deviance(yv, p)
	converged := false
	iter := 0
	for iter < lr.maxIter {
		iter++
		for i := range w {
			// 確率が0や1に近い点の重みは下限で抑える
			w[i] = math.Max(p[i]*(1-p[i]), 1e-5)
			z[i] = eta[i] + (yv[i]-p[i])/w[i]
		}
		penalizedLS(cols, w, z, &b0, b, lr.Penalty, lr.Mixture, 1000, 1e-9)
		refresh()

		newDev := deviance(yv, p)
		if err := errors.CheckScalar("LogisticRegression.Fit", newDev, iter); err != nil {
			return err
		}
		if math.Abs(newDev-dev)/(math.Abs(newDev)+0.1) < lr.tol {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", iter, "deviance did not converge"))
	}

	lr.Intercept, lr.Coef = unstandardize(sc, b0, b)
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", lr.Coef, iter); err != nil {
		return err
	}
	lr.NIter = iter
	lr.SetDimensions(c, n)
	lr.SetFitted()
	return nil
}

// DecisionFunction returns the linear predictor for each row.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := lr.CheckFeatures("LogisticRegression.DecisionFunction", c); err != nil {
		return nil, err
	}
	return linearPredictor(X, lr.Coef, lr.Intercept), nil
}

// PredictProba returns an n×2 matrix of class probabilities; column 1 is the
// probability of class 1.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	eta, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := eta.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		p := sigmoid(eta.At(i, 0))
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict returns the class code (0 or 1) whose probability is at least 0.5.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		if proba.At(i, 1) >= 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Score returns the mean accuracy on the given data
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	yv, err := checkXY("LogisticRegression.Score", X, y)
	if err != nil {
		return 0, err
	}
	var correct int
	for i, v := range yv {
		if pred.At(i, 0) == v {
			correct++
		}
	}
	return float64(correct) / float64(len(yv)), nil
}

func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(penalty=%g, mixture=%g)", lr.Penalty, lr.Mixture)
}
