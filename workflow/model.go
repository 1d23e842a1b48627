package workflow

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/baseline"
	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/ensemble"
	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/linear"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tree"
)

// Model is the strategy that turns a baked design into a trained estimator.
// params binds every parameter the family uses, defaults included.
type Model interface {
	Fit(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, params grid.Config) (Trained, error)
}

// Trained is a fitted estimator. Predict returns estimates (class codes for
// classification); PredictProb returns the class 1 probability and fails
// for regression.
type Trained interface {
	Predict(X mat.Matrix) ([]float64, error)
	PredictProb(X mat.Matrix) ([]float64, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, params grid.Config) (Trained, error)

// Fit calls f.
func (f ModelFunc) Fit(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, params grid.Config) (Trained, error) {
	return f(ctx, X, y, mode, params)
}

// ModelFor returns the built-in strategy of family f. seed drives the
// random forest bootstrap and is ignored by the other families.
func ModelFor(f Family, seed uint64) Model {
	switch f {
	case LinearRegression:
		return ModelFunc(fitLinear)
	case RegularizedLinear:
		return ModelFunc(fitRegularized)
	case DecisionTree:
		return ModelFunc(fitTree)
	case RandomForest:
		return forestModel{seed: seed}
	default:
		return ModelFunc(fitNull)
	}
}

// trained wraps a gonum estimator.
type trained struct {
	name  string
	pred  model.Predictor
	proba model.ProbaPredictor
}

func (t *trained) Predict(X mat.Matrix) ([]float64, error) {
	out, err := t.pred.Predict(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, out), nil
}

func (t *trained) PredictProb(X mat.Matrix) ([]float64, error) {
	if t.proba == nil {
		return nil, errors.NewValueError(t.name+".PredictProb", "class probabilities need a classification model")
	}
	out, err := t.proba.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 1, out), nil
}

// estimator is what every built-in strategy fits.
type estimator interface {
	model.Fitter
	model.Predictor
}

func fitEstimator(ctx context.Context, name string, est estimator, X *mat.Dense, y []float64) (Trained, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := est.Fit(X, mat.NewDense(len(y), 1, y)); err != nil {
		return nil, err
	}
	t := &trained{name: name, pred: est}
	if p, ok := est.(model.ProbaPredictor); ok {
		t.proba = p
	}
	return t, nil
}

func fitNull(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, _ grid.Config) (Trained, error) {
	if mode == model.Classification {
		return fitEstimator(ctx, "NullClassifier", baseline.NewNullClassifier(), X, y)
	}
	return fitEstimator(ctx, "NullRegressor", baseline.NewNullRegressor(), X, y)
}

func fitLinear(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, _ grid.Config) (Trained, error) {
	if mode == model.Classification {
		return fitEstimator(ctx, "LogisticRegression", linear.NewLogisticRegression(), X, y)
	}
	return fitEstimator(ctx, "LinearRegression", linear.NewLinearRegression(), X, y)
}

func fitRegularized(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (Trained, error) {
	if mode == model.Classification {
		lr := linear.NewLogisticRegression(linear.WithLRPenalty(p["penalty"]), linear.WithLRMixture(p["mixture"]))
		return fitEstimator(ctx, "LogisticRegression", lr, X, y)
	}
	en := linear.NewElasticNet(linear.WithPenalty(p["penalty"]), linear.WithMixture(p["mixture"]))
	return fitEstimator(ctx, "ElasticNet", en, X, y)
}

func fitTree(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (Trained, error) {
	minN := int(p["min_n"])
	opts := []tree.Option{
		tree.WithCCP(p["cost_complexity"]),
		tree.WithMaxDepth(int(p["tree_depth"])),
		tree.WithMinSamplesSplit(minN),
		// 葉の最小サイズは min_n の3分の1
		tree.WithMinSamplesLeaf(max(1, int(math.Round(float64(minN)/3)))),
	}
	if mode == model.Classification {
		return fitEstimator(ctx, "DecisionTreeClassifier", tree.NewDecisionTreeClassifier(opts...), X, y)
	}
	return fitEstimator(ctx, "DecisionTreeRegressor", tree.NewDecisionTreeRegressor(opts...), X, y)
}

type forestModel struct {
	seed uint64
}

func (m forestModel) Fit(ctx context.Context, X *mat.Dense, y []float64, mode model.Mode, p grid.Config) (Trained, error) {
	_, c := X.Dims()
	rf := ensemble.NewRandomForest(mode,
		ensemble.WithTrees(int(p["trees"])),
		ensemble.WithMtry(min(int(p["mtry"]), c)),
		ensemble.WithMinN(int(p["min_n"])),
		ensemble.WithSeed(m.seed),
		// 外側のプールが並列化するので木は逐次に育てる
		ensemble.WithWorkers(1),
	)
	if err := rf.FitContext(ctx, X, mat.NewDense(len(y), 1, y)); err != nil {
		return nil, err
	}
	t := &trained{name: "RandomForest", pred: rf}
	if mode == model.Classification {
		t.proba = rf
	}
	return t, nil
}
