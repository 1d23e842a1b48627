// Package ensemble implements random forests of CART trees.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/core/parallel"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tree"
)

// member is a fitted tree of either mode.
type member interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
	GetFeatureImportances() []float64
}

// RandomForest averages trees grown on bootstrap samples, each split drawing
// Mtry candidate features. Tree t is seeded from (Seed, t) alone, so a fit is
// reproducible whatever the number of workers.
type RandomForest struct {
	model.StateManager

	Mode model.Mode
	// NTrees は木の本数
	NTrees int
	// Mtry は各分岐で候補にする特徴量の数。0 なら floor(sqrt(p))
	Mtry int
	// MinN は分岐に必要な最小サンプル数
	MinN int
	Seed uint64
	// Workers は並列に木を育てるゴルーチン数。0 なら runtime.NumCPU()
	Workers int

	// NClasses は分類のクラス数
	NClasses int

	trees []member
}

// Option configures a RandomForest.
type Option func(*RandomForest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option { return func(f *RandomForest) { f.NTrees = n } }

// WithMtry sets the number of candidate features per split.
func WithMtry(n int) Option { return func(f *RandomForest) { f.Mtry = n } }

// WithMinN sets the minimum node size for a split.
func WithMinN(n int) Option { return func(f *RandomForest) { f.MinN = n } }

// WithSeed sets the seed of the bootstrap and feature sampling.
func WithSeed(seed uint64) Option { return func(f *RandomForest) { f.Seed = seed } }

// WithWorkers bounds the goroutines growing trees.
func WithWorkers(n int) Option { return func(f *RandomForest) { f.Workers = n } }

// NewRandomForest creates a forest of 500 trees. The default minimum node
// size is 5 for regression and 10 for classification.
func NewRandomForest(mode model.Mode, opts ...Option) *RandomForest {
	f := &RandomForest{Mode: mode, NTrees: 500, MinN: 5}
	if mode == model.Classification {
		f.MinN = 10
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit grows the forest on X and y.
func (f *RandomForest) Fit(X, y mat.Matrix) error {
	return f.FitContext(context.Background(), X, y)
}

// FitContext grows the forest, stopping early when ctx is cancelled.
func (f *RandomForest) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "RandomForest.Fit"
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if ry, _ := y.Dims(); ry != r {
		return errors.NewDimensionError(op, r, ry, 0)
	}
	if f.NTrees < 1 {
		return errors.NewValidationError("trees", "must be at least 1", f.NTrees)
	}
	mtry := f.Mtry
	if mtry == 0 {
		mtry = max(1, int(math.Floor(math.Sqrt(float64(c)))))
	}
	if mtry < 1 || mtry > c {
		return errors.NewValidationError("mtry", fmt.Sprintf("must be in [1, %d]", c), mtry)
	}
	yv := mat.Col(nil, 0, y)
	if f.Mode == model.Classification {
		k := 2
		for _, v := range yv {
			if v < 0 || v != math.Trunc(v) {
				return errors.NewValueError(op, fmt.Sprintf("class labels must be non-negative integers, got %v", v))
			}
			k = max(k, int(v)+1)
		}
		f.NClasses = k
	}

	workers := f.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	trees := make([]member, f.NTrees)
	errs := make([]error, f.NTrees)
	parallel.ParallelizeN(f.NTrees, workers, func(start, end int) {
		for t := start; t < end; t++ {
			if ctx.Err() != nil {
				return
			}
			trees[t], errs[t] = f.growTree(X, yv, t, mtry)
		}
	})
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "random forest fit cancelled")
	}
	for t, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "tree %d", t)
		}
	}

	f.trees = trees
	f.SetDimensions(c, r)
	f.SetFitted()
	return nil
}

func (f *RandomForest) growTree(X mat.Matrix, y []float64, t, mtry int) (member, error) {
	rng := rand.New(rand.NewPCG(f.Seed, uint64(t)))
	r, c := X.Dims()
	Xb := mat.NewDense(r, c, nil)
	yb := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		k := rng.IntN(r)
		for j := 0; j < c; j++ {
			Xb.Set(i, j, X.At(k, j))
		}
		yb.Set(i, 0, y[k])
	}

	opts := []tree.Option{
		tree.WithMaxFeatures(mtry),
		tree.WithMinSamplesSplit(max(2, f.MinN)),
		tree.WithRandomState(rng.Uint64()),
	}
	if f.Mode == model.Classification {
		dt := tree.NewDecisionTreeClassifier(opts...)
		return dt, dt.Fit(Xb, yb)
	}
	dt := tree.NewDecisionTreeRegressor(opts...)
	return dt, dt.Fit(Xb, yb)
}

// PredictProba averages the class proportions of the trees.
func (f *RandomForest) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := f.RequireFitted("RandomForest", "PredictProba"); err != nil {
		return nil, err
	}
	if f.Mode != model.Classification {
		return nil, errors.NewValueError("RandomForest.PredictProba", "probabilities need a classification forest")
	}
	r, c := X.Dims()
	if err := f.CheckFeatures("RandomForest.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, f.NClasses, nil)
	for _, m := range f.trees {
		p, err := m.(*tree.DecisionTreeClassifier).PredictProba(X)
		if err != nil {
			return nil, err
		}
		// ブートストラップで欠けた上位クラスの列は0として扱う
		_, k := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < k; j++ {
				out.Set(i, j, out.At(i, j)+p.At(i, j))
			}
		}
	}
	out.Scale(1/float64(len(f.trees)), out)
	return out, nil
}

// Predict returns the averaged tree prediction for regression and the class
// with the largest averaged probability for classification.
func (f *RandomForest) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := f.RequireFitted("RandomForest", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := f.CheckFeatures("RandomForest.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	if f.Mode == model.Classification {
		proba, err := f.PredictProba(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			best := 0
			for k := 1; k < f.NClasses; k++ {
				if proba.At(i, k) > proba.At(i, best) {
					best = k
				}
			}
			out.Set(i, 0, float64(best))
		}
		return out, nil
	}
	for _, m := range f.trees {
		p, err := m.Predict(X)
		if err != nil {
			return nil, err
		}
		out.Add(out, p)
	}
	out.Scale(1/float64(len(f.trees)), out)
	return out, nil
}

// FeatureImportances returns the impurity importances averaged over trees.
func (f *RandomForest) FeatureImportances() []float64 {
	if len(f.trees) == 0 {
		return nil
	}
	out := make([]float64, len(f.trees[0].GetFeatureImportances()))
	for _, m := range f.trees {
		for j, v := range m.GetFeatureImportances() {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(f.trees))
	}
	return out
}

func (f *RandomForest) String() string {
	return fmt.Sprintf("RandomForest(mode=%s, trees=%d, mtry=%d, min_n=%d)", f.Mode, f.NTrees, f.Mtry, f.MinN)
}
