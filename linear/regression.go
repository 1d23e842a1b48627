// Package linear provides the linear model families: ordinary least squares,
// the elastic net and binary logistic regression, all over gonum matrices.
package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は最小二乗法による線形回帰モデル
type LinearRegression struct {
	model.StateManager

	// Coef は係数（特徴量数）
	Coef []float64
	// Intercept は切片
	Intercept float64
	// Rank は計画行列の数値ランク。列数より小さければ係数は最小ノルム解
	Rank int

	fitIntercept bool
	tol          float64
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{fitIntercept: true, tol: 1e-10}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// checkXY validates a design matrix and a column-vector outcome and returns
// the outcome as a slice.
func checkXY(op string, X, y mat.Matrix) ([]float64, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	ry, cy := y.Dims()
	if ry != r {
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

// design returns X with a leading column of ones when intercept is set.
func design(X mat.Matrix, intercept bool) *mat.Dense {
	r, c := X.Dims()
	if !intercept {
		return mat.DenseCopyOf(X)
	}
	out := mat.NewDense(r, c+1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			out.Set(i, 0, 1.0)
			for j := 0; j < c; j++ {
				out.Set(i, j+1, X.At(i, j))
			}
		}
	})
	return out
}

// Fit はモデルを訓練データで学習させる。
// 特異値分解による最小二乗解を使うため、ランク落ちした計画行列でも失敗しない
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	yv, err := checkXY("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}
	r, c := X.Dims()
	if err := errors.CheckNumericalStability("LinearRegression.Fit", mat.DenseCopyOf(X).RawMatrix().Data, 0); err != nil {
		return err
	}

	A := design(X, lr.fitIntercept)
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	rank := svd.Rank(lr.tol)
	if rank == 0 {
		return errors.NewModelError("LinearRegression.Fit", "design matrix has rank zero", errors.ErrSingularMatrix)
	}

	var beta mat.Dense
	svd.SolveTo(&beta, mat.NewDense(r, 1, yv), rank)

	lr.Rank = rank
	lr.Coef = make([]float64, c)
	lr.Intercept = 0
	offset := 0
	if lr.fitIntercept {
		lr.Intercept = beta.At(0, 0)
		offset = 1
	}
	for j := 0; j < c; j++ {
		lr.Coef[j] = beta.At(j+offset, 0)
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", lr.Coef, 0); err != nil {
		return err
	}

	lr.SetDimensions(c, r)
	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := lr.CheckFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}
	return linearPredictor(X, lr.Coef, lr.Intercept), nil
}

// linearPredictor returns X·coef + intercept as an n×1 matrix.
func linearPredictor(X mat.Matrix, coef []float64, intercept float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			v := intercept
			for j := 0; j < c; j++ {
				v += X.At(i, j) * coef[j]
			}
			out.Set(i, 0, v)
		}
	})
	return out
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	yv, err := checkXY("LinearRegression.Score", X, y)
	if err != nil {
		return 0, err
	}
	var mean float64
	for _, v := range yv {
		mean += v
	}
	mean /= float64(len(yv))
	var tss, rss float64
	for i, v := range yv {
		tss += (v - mean) * (v - mean)
		d := v - pred.At(i, 0)
		rss += d * d
	}
	if tss == 0 {
		return 0, errors.NewValueError("LinearRegression.Score", "total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

func (lr *LinearRegression) String() string {
	if !lr.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.fitIntercept)
	}
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, rank=%d)", lr.fitIntercept, len(lr.Coef), lr.Rank)
}
