package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbaPredictor はクラス確率を返す分類器のインターフェース
type ProbaPredictor interface {
	// PredictProba は (サンプル数 × クラス数) の確率行列を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Mode はモデルが解く問題の種類
type Mode int

const (
	// Regression は連続値のアウトカムを予測する
	Regression Mode = iota
	// Classification は二値のアウトカムを予測する
	Classification
)

func (m Mode) String() string {
	switch m {
	case Regression:
		return "regression"
	case Classification:
		return "classification"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode は "regression" / "classification" を Mode に変換する
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "regression":
		return Regression, nil
	case "classification":
		return Classification, nil
	default:
		return Regression, errors.NewValidationError("mode", "must be regression or classification", s)
	}
}
