package linear

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// benchDesign は症状データに近い計画行列を作る。
// 先頭 cols/2 列は 0/1 の指示変数、残りは標準化済みの連続値。
// y は体温に近い連続値、yc は y > 98.9 の 0/1。
func benchDesign(rows, cols int) (X, y, yc *mat.Dense) {
	rng := rand.New(rand.NewPCG(2021, uint64(rows*cols)))
	X = mat.NewDense(rows, cols, nil)
	y = mat.NewDense(rows, 1, nil)
	yc = mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		temp := 98.9
		for j := 0; j < cols; j++ {
			var v float64
			if j < cols/2 {
				if rng.Float64() < 0.3 {
					v = 1
				}
			} else {
				v = rng.NormFloat64()
			}
			X.Set(i, j, v)
			temp += v * 0.2 / float64(j+1)
		}
		temp += rng.NormFloat64() * 0.8
		y.Set(i, 0, temp)
		if temp > 98.9 {
			yc.Set(i, 0, 1)
		}
	}
	return X, y, yc
}

var benchSizes = []struct {
	name       string
	rows, cols int
}{
	{"visits_500x16", 500, 16},
	{"visits_2000x32", 2000, 32},
	{"visits_10000x32", 10000, 32},
}

func BenchmarkLinearRegressionFit(b *testing.B) {
	for _, s := range benchSizes {
		b.Run(s.name, func(b *testing.B) {
			X, y, _ := benchDesign(s.rows, s.cols)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := NewLinearRegression().Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkElasticNetFit(b *testing.B) {
	// lasso, ridge 寄り, 中間
	for _, mixture := range []float64{1, 0.5, 0.05} {
		X, y, _ := benchDesign(2000, 32)
		b.Run(benchName("mixture", mixture), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				en := NewElasticNet(WithPenalty(0.01), WithMixture(mixture))
				if err := en.Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLogisticRegressionFit(b *testing.B) {
	for _, s := range benchSizes[:2] {
		b.Run(s.name, func(b *testing.B) {
			X, _, yc := benchDesign(s.rows, s.cols)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				lr := NewLogisticRegression(WithLRPenalty(0.001))
				if err := lr.Fit(X, yc); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDesign(b *testing.B) {
	X, _, _ := benchDesign(10000, 32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = design(X, true)
	}
}

func benchName(key string, v float64) string {
	return key + "_" + strconv.FormatFloat(v, 'g', -1, 64)
}
