package errors

import (
	"math"
)

const (
	// divideEps 未満の分母はゼロとみなす
	divideEps = 1e-10
	// logFloor は StabilizeLog が使う下限
	logFloor = 1e-10
	// expCeil を超える指数は Inf になるため切り詰める
	expCeil = 700.0
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// CheckNumericalStability は values に NaN か Inf が含まれていれば
// NumericalInstabilityError を返す。iteration は反復法の何回目かを記録する。
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if !finite(v) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// CheckScalar は単一の値に対する CheckNumericalStability。
func CheckScalar(operation string, value float64, iteration int) error {
	if finite(value) {
		return nil
	}
	return NewNumericalInstabilityError(operation, []float64{value}, iteration)
}

// SafeDivide は分母がほぼゼロのとき 0 を返す。
// 片方のクラスしかない fold の ROC 座標などで使う。
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < divideEps {
		return 0
	}
	return numerator / denominator
}

// ClipValue は value を [lo, hi] に収める。
func ClipValue(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

// StabilizeLog は log(max(value, 1e-10))。
func StabilizeLog(value float64) float64 {
	return math.Log(math.Max(value, logFloor))
}

// StabilizeExp はオーバーフローしない exp。入力は [-700, 700] に切り詰め、
// 下側は 0 を返す。
func StabilizeExp(value float64) float64 {
	switch {
	case value > expCeil:
		return math.Exp(expCeil)
	case value < -expCeil:
		return 0
	}
	return math.Exp(value)
}
