package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/core/model"
)

// friedman draws rows of y = 10 sin(x0) + 5 x1 + noise with an irrelevant x2.
func friedman(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0, x1, x2 := rng.Float64()*3, rng.Float64(), rng.Float64()
		X.SetRow(i, []float64{x0, x1, x2})
		y.Set(i, 0, 10*math.Sin(x0)+5*x1+rng.NormFloat64()*0.1)
	}
	return X, y
}

func TestRandomForestRegression(t *testing.T) {
	X, y := friedman(200, 1)
	rf := NewRandomForest(model.Regression, WithTrees(50), WithSeed(3), WithMtry(2))
	if err := rf.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, err := rf.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	var sse, sst, mean float64
	for i := 0; i < 200; i++ {
		mean += y.At(i, 0) / 200
	}
	for i := 0; i < 200; i++ {
		d := y.At(i, 0) - pred.At(i, 0)
		sse += d * d
		sst += (y.At(i, 0) - mean) * (y.At(i, 0) - mean)
	}
	if r2 := 1 - sse/sst; r2 < 0.8 {
		t.Errorf("training R² = %v", r2)
	}

	imp := rf.FeatureImportances()
	if imp[2] >= imp[0] || imp[2] >= imp[1] {
		t.Errorf("noise feature should matter least: %v", imp)
	}
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	X, y := friedman(80, 2)
	fit := func(workers int) *mat.Dense {
		rf := NewRandomForest(model.Regression, WithTrees(20), WithSeed(11), WithWorkers(workers))
		if err := rf.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		p, err := rf.Predict(X)
		if err != nil {
			t.Fatal(err)
		}
		return mat.DenseCopyOf(p)
	}
	if a, b := fit(1), fit(4); !mat.Equal(a, b) {
		t.Error("predictions depend on the number of workers")
	}
}

func TestRandomForestClassification(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	n := 200
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64(), rng.Float64()
		X.SetRow(i, []float64{a, b})
		if a+b > 1 {
			y.Set(i, 0, 1)
		}
	}
	rf := NewRandomForest(model.Classification, WithTrees(30), WithSeed(1))
	if err := rf.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	proba, err := rf.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	pred, _ := rf.Predict(X)
	correct := 0
	for i := 0; i < n; i++ {
		if s := proba.At(i, 0) + proba.At(i, 1); math.Abs(s-1) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %v", i, s)
		}
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	if acc := float64(correct) / float64(n); acc < 0.85 {
		t.Errorf("training accuracy = %v", acc)
	}
}

func TestRandomForestCancelled(t *testing.T) {
	X, y := friedman(50, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rf := NewRandomForest(model.Regression, WithTrees(10))
	if err := rf.FitContext(ctx, X, y); err == nil {
		t.Fatal("expected an error from a cancelled fit")
	}
	if rf.IsFitted() {
		t.Error("cancelled forest must not be marked fitted")
	}
}

func TestRandomForestInvalidMtry(t *testing.T) {
	X, y := friedman(20, 4)
	if err := NewRandomForest(model.Regression, WithMtry(5)).Fit(X, y); err == nil {
		t.Error("mtry above the number of features should be rejected")
	}
	if err := NewRandomForest(model.Regression, WithTrees(0)).Fit(X, y); err == nil {
		t.Error("zero trees should be rejected")
	}
}
