package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/preprocessing"
)

// ElasticNet は elastic net 正則化付き線形回帰モデル。
//
// 標準化した特徴量上で
//
//	1/(2n)‖y − b0 − Xb‖² + λ(α‖b‖₁ + (1−α)/2‖b‖²)
//
// を座標降下法で最小化し、係数は元のスケールに戻して保持する。
type ElasticNet struct {
	model.StateManager

	// Penalty は正則化の強さ λ
	Penalty float64
	// Mixture は L1 罰則の割合 α
	Mixture float64

	Coef      []float64
	Intercept float64
	// NIter は収束までの反復回数
	NIter int

	maxIter int
	tol     float64
}

// NewElasticNet creates an ElasticNet with λ = 0.01 and α = 1 (lasso).
func NewElasticNet(opts ...ElasticNetOption) *ElasticNet {
	en := &ElasticNet{Penalty: 0.01, Mixture: 1, maxIter: 10000, tol: 1e-7}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

func checkPenalty(lambda, alpha float64) error {
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return errors.NewValidationError("penalty", "must be a finite non-negative number", lambda)
	}
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		return errors.NewValidationError("mixture", "must be in [0, 1]", alpha)
	}
	return nil
}

// SoftThreshold returns sign(z)·max(|z|−gamma, 0).
func SoftThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// standardize fits a population-SD scaler on X and returns it together with
// the standardized columns.
func standardize(X mat.Matrix) (*preprocessing.StandardScaler, [][]float64, error) {
	sc := preprocessing.NewStandardScalerDefault()
	Z, err := sc.FitTransform(X)
	if err != nil {
		return nil, nil, err
	}
	_, c := Z.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, Z)
	}
	return sc, cols, nil
}

// unstandardize maps coefficients fitted on standardized columns back to the
// original scale.
func unstandardize(sc *preprocessing.StandardScaler, b0 float64, b []float64) (float64, []float64) {
	coef := make([]float64, len(b))
	for j := range b {
		coef[j] = b[j] / sc.Scale[j]
		b0 -= coef[j] * sc.Mean[j]
	}
	return b0, coef
}

// penalizedLS minimizes
//
//	1/(2n) Σ w_i (z_i − b0 − x_i·b)² + λ(α‖b‖₁ + (1−α)/2‖b‖²)
//
// by cyclic coordinate descent, updating b0 and b in place. It stops when the
// largest weighted squared change of a coefficient in a sweep is below tol and
// reports the number of sweeps and whether that happened.
func penalizedLS(cols [][]float64, w, z []float64, b0 *float64, b []float64, lambda, alpha float64, maxSweeps int, tol float64) (int, bool) {
	n := len(z)
	nf := float64(n)

	r := make([]float64, n)
	var sumW float64
	for i := range r {
		v := z[i] - *b0
		for j, col := range cols {
			v -= col[i] * b[j]
		}
		r[i] = v
		sumW += w[i]
	}
	xwx := make([]float64, len(cols))
	for j, col := range cols {
		var s float64
		for i, x := range col {
			s += w[i] * x * x
		}
		xwx[j] = s / nf
	}

	l1, l2 := lambda*alpha, lambda*(1-alpha)
	for sweep := 1; sweep <= maxSweeps; sweep++ {
		var maxDelta float64

		var wr float64
		for i := range r {
			wr += w[i] * r[i]
		}
		if d := wr / sumW; d != 0 {
			*b0 += d
			for i := range r {
				r[i] -= d
			}
			maxDelta = math.Max(maxDelta, sumW/nf*d*d)
		}

		for j, col := range cols {
			if xwx[j] == 0 {
				continue
			}
			var g float64
			for i, x := range col {
				g += w[i] * x * r[i]
			}
			g = g/nf + xwx[j]*b[j]
			nb := SoftThreshold(g, l1) / (xwx[j] + l2)
			d := nb - b[j]
			if d == 0 {
				continue
			}
			b[j] = nb
			for i, x := range col {
				r[i] -= d * x
			}
			maxDelta = math.Max(maxDelta, xwx[j]*d*d)
		}

		if maxDelta < tol {
			return sweep, true
		}
	}
	return maxSweeps, false
}

// Fit はモデルを訓練データで学習させる
func (en *ElasticNet) Fit(X, y mat.Matrix) error {
	yv, err := checkXY("ElasticNet.Fit", X, y)
	if err != nil {
		return err
	}
	if err := checkPenalty(en.Penalty, en.Mixture); err != nil {
		return err
	}
	r, c := X.Dims()

	sc, cols, err := standardize(X)
	if err != nil {
		return err
	}
	w := make([]float64, r)
	for i := range w {
		w[i] = 1
	}

	// 収束判定は y の分散に対する相対値
	scale := stat.PopVariance(yv, nil)
	if scale == 0 {
		scale = 1
	}
	b0 := 0.0
	b := make([]float64, c)
	iter, ok := penalizedLS(cols, w, yv, &b0, b, en.Penalty, en.Mixture, en.maxIter, en.tol*scale)
	if !ok {
		errors.Warn(errors.NewConvergenceWarning("ElasticNet", iter, "coordinate descent did not converge"))
	}

	en.Intercept, en.Coef = unstandardize(sc, b0, b)
	if err := errors.CheckNumericalStability("ElasticNet.Fit", en.Coef, iter); err != nil {
		return err
	}
	en.NIter = iter
	en.SetDimensions(c, r)
	en.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (en *ElasticNet) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := en.RequireFitted("ElasticNet", "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := en.CheckFeatures("ElasticNet.Predict", c); err != nil {
		return nil, err
	}
	return linearPredictor(X, en.Coef, en.Intercept), nil
}

// NonZero returns the number of non-zero coefficients.
func (en *ElasticNet) NonZero() int {
	var n int
	for _, v := range en.Coef {
		if v != 0 {
			n++
		}
	}
	return n
}

func (en *ElasticNet) String() string {
	return fmt.Sprintf("ElasticNet(penalty=%g, mixture=%g)", en.Penalty, en.Mixture)
}
