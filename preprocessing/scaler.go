// Package preprocessing provides column scalers over gonum matrices.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// StandardScaler はデータを平均0、標準偏差1に変換する
type StandardScaler struct {
	model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64
	// Scale は各特徴量の標準偏差。分散のない列は1
	Scale []float64

	// WithMean は平均を引くかどうか
	WithMean bool
	// WithStd は標準偏差で割るかどうか
	WithStd bool
	// Unbiased が true なら標準偏差を n-1 で計算する（recipe の正規化）。
	// false なら n で計算する（glmnet の標準化）。
	Unbiased bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから平均と標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if s.Unbiased && r > 1 {
			mean, std = stat.MeanStdDev(col, nil)
		}
		if !s.WithMean {
			mean = 0
		}
		// 分散のない列はスケールしない
		if !s.WithStd || std < 1e-8 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}

	s.SetDimensions(c, r)
	s.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.CheckFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.CheckFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return out, nil
}

func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)", s.WithMean, s.WithStd, len(s.Mean))
}

// MinMaxScaler はデータを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	model.StateManager

	Min          []float64
	Max          []float64
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: featureRange}
}

// NewMinMaxScalerDefault は[0,1]範囲のMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

// Fit は訓練データから各列の最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "min must be below max", m.FeatureRange)
	}
	m.Min = make([]float64, c)
	m.Max = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		m.Min[j], m.Max[j] = lo, hi
	}
	m.SetDimensions(c, r)
	m.SetFitted()
	return nil
}

// Transform は学習した範囲でデータをスケーリングする。定数列は範囲の下端になる。
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.CheckFeatures("MinMaxScaler.Transform", c); err != nil {
		return nil, err
	}
	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		span := m.Max[j] - m.Min[j]
		if span == 0 {
			return lo
		}
		return lo + (v-m.Min[j])/span*(hi-lo)
	}, X)
	return out, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}
