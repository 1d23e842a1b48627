package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// logLossEps はlog(0)を避けるための確率のクリップ幅
const logLossEps = 1e-15

func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC はROC曲線下面積をMann-Whitney統計量として計算する。
// 同順位のスコアは平均順位で扱う。正例または負例しかない場合は
// UndefinedMetricWarning を出して 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	var nPos, nNeg, rankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && yScore.AtVec(idx[j]) == yScore.AtVec(idx[i]) {
			j++
		}
		// 順位は1始まり、同順位 i..j-1 の平均
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSum += avg
				nPos++
			} else {
				nNeg++
			}
		}
		i = j
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// AUCMatrix は行列の先頭列を使ってAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, s, err := columnVectors("AUCMatrix", yTrue, yScore, false)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

// ROCCurve は閾値を降順に動かしたときの偽陽性率と真陽性率を返す。
// 先頭は (0, 0)、閾値は +Inf。
func ROCCurve(yTrue, yScore *mat.VecDense) (fpr, tpr, thresholds []float64, err error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkBinaryLabels("ROCCurve", yTrue); err != nil {
		return nil, nil, nil, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b]) })

	var nPos, nNeg float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}

	fpr, tpr, thresholds = []float64{0}, []float64{0}, []float64{math.Inf(1)}
	var tp, fp float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(idx[i]) == 1 {
			tp++
		} else {
			fp++
		}
		s := yScore.AtVec(idx[i])
		if i+1 < n && yScore.AtVec(idx[i+1]) == s {
			continue
		}
		fpr = append(fpr, errors.SafeDivide(fp, nNeg))
		tpr = append(tpr, errors.SafeDivide(tp, nPos))
		thresholds = append(thresholds, s)
	}
	return fpr, tpr, thresholds, nil
}

// BinaryLogLoss は二値分類の平均対数損失を計算する。
// 確率は [eps, 1-eps] にクリップする。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Accuracy は予測クラスが真値と一致する割合を返す
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は 1 - Accuracy
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}
