// Package tree implements CART decision trees for regression and binary or
// multiclass classification.
//
// Splits are binary on a single feature: rows with x <= Threshold go left.
// Growth stops at the depth limit, below the minimum node size, when a node
// is pure, or when the best split improves the total impurity by less than
// the complexity parameter times the root's total impurity.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

type params struct {
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	ccpAlpha        float64
	maxFeatures     int
	randomState     uint64
}

func (p *params) validate(classification bool) error {
	switch p.criterion {
	case "squared_error":
		if classification {
			return errors.NewValidationError("criterion", "squared_error is a regression criterion", p.criterion)
		}
	case "gini", "entropy":
		if !classification {
			return errors.NewValidationError("criterion", "gini and entropy are classification criteria", p.criterion)
		}
	default:
		return errors.NewValidationError("criterion", "unknown criterion", p.criterion)
	}
	if p.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", p.minSamplesSplit)
	}
	if p.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", p.minSamplesLeaf)
	}
	if p.ccpAlpha < 0 || math.IsNaN(p.ccpAlpha) {
		return errors.NewValidationError("ccp_alpha", "must be non-negative", p.ccpAlpha)
	}
	return nil
}

func (p *params) get() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.criterion,
		"max_depth":         p.maxDepth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"ccp_alpha":         p.ccpAlpha,
		"max_features":      p.maxFeatures,
		"random_state":      p.randomState,
	}
}

func (p *params) set(values map[string]interface{}) error {
	for k, v := range values {
		var ok bool
		switch k {
		case "criterion":
			p.criterion, ok = v.(string)
		case "max_depth":
			p.maxDepth, ok = v.(int)
		case "min_samples_split":
			p.minSamplesSplit, ok = v.(int)
		case "min_samples_leaf":
			p.minSamplesLeaf, ok = v.(int)
		case "ccp_alpha":
			p.ccpAlpha, ok = v.(float64)
		case "max_features":
			p.maxFeatures, ok = v.(int)
		case "random_state":
			p.randomState, ok = v.(uint64)
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
		if !ok {
			return errors.NewValidationError(k, fmt.Sprintf("unexpected type %T", v), v)
		}
	}
	return nil
}

// Node is one node of a fitted tree. Leaves have Feature -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value は回帰では平均値、分類ではクラスごとの割合
	Value    []float64
	NSamples int
	Impurity float64
}

// Leaf reports whether n is a leaf.
func (n *Node) Leaf() bool { return n.Feature < 0 }

// fitted holds the grown tree shared by the regressor and the classifier.
type fitted struct {
	Nodes       []Node
	Importances []float64
	Depth       int
	NLeaves     int
}

// apply returns the leaf reached by row i of X.
func (f *fitted) apply(X mat.Matrix, i int) *Node {
	n := &f.Nodes[0]
	for !n.Leaf() {
		if X.At(i, n.Feature) <= n.Threshold {
			n = &f.Nodes[n.Left]
		} else {
			n = &f.Nodes[n.Right]
		}
	}
	return n
}

type builder struct {
	params
	cols     [][]float64
	y        []float64
	nClasses int // 0 は回帰
	rng      *rand.Rand

	out       fitted
	rootTotal float64
}

func grow(p params, X mat.Matrix, y []float64, nClasses int) fitted {
	r, c := X.Dims()
	b := &builder{
		params:   p,
		cols:     make([][]float64, c),
		y:        y,
		nClasses: nClasses,
		rng:      rand.New(rand.NewPCG(p.randomState, p.randomState^0x9e3779b97f4a7c15)),
	}
	for j := range b.cols {
		b.cols[j] = mat.Col(nil, j, X)
	}
	b.out.Importances = make([]float64, c)

	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	b.build(idx, 0)

	var total float64
	for _, v := range b.out.Importances {
		total += v
	}
	if total > 0 {
		for j := range b.out.Importances {
			b.out.Importances[j] /= total
		}
	}
	return b.out
}

// summarize returns the node value and impurity of rows idx.
func (b *builder) summarize(idx []int) ([]float64, float64) {
	n := float64(len(idx))
	if b.nClasses == 0 {
		var sum, sumSq float64
		for _, i := range idx {
			sum += b.y[i]
			sumSq += b.y[i] * b.y[i]
		}
		mean := sum / n
		return []float64{mean}, math.Max(sumSq/n-mean*mean, 0)
	}
	counts := make([]float64, b.nClasses)
	for _, i := range idx {
		counts[int(b.y[i])]++
	}
	for k := range counts {
		counts[k] /= n
	}
	return counts, b.classImpurity(counts)
}

// classImpurity returns the impurity of class proportions p.
func (b *builder) classImpurity(p []float64) float64 {
	var v float64
	if b.criterion == "entropy" {
		for _, q := range p {
			if q > 0 {
				v -= q * math.Log2(q)
			}
		}
		return v
	}
	v = 1
	for _, q := range p {
		v -= q * q
	}
	return v
}

func (b *builder) build(idx []int, depth int) int {
	value, impurity := b.summarize(idx)
	id := len(b.out.Nodes)
	b.out.Nodes = append(b.out.Nodes, Node{Feature: -1, Left: -1, Right: -1, Value: value, NSamples: len(idx), Impurity: impurity})
	b.out.Depth = max(b.out.Depth, depth)

	total := float64(len(idx)) * impurity
	if depth == 0 {
		b.rootTotal = total
	}
	if (b.maxDepth > 0 && depth >= b.maxDepth) || len(idx) < b.minSamplesSplit || impurity <= 1e-15 {
		b.out.NLeaves++
		return id
	}

	feature, threshold, cost, ok := b.bestSplit(idx)
	decrease := total - cost
	if !ok || decrease <= 1e-12*math.Max(1, total) || decrease < b.ccpAlpha*b.rootTotal {
		b.out.NLeaves++
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.cols[feature][i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.out.Importances[feature] += decrease

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	n := &b.out.Nodes[id]
	n.Feature, n.Threshold, n.Left, n.Right = feature, threshold, l, r
	return id
}

// candidates returns the features searched at a node.
func (b *builder) candidates() []int {
	p := len(b.cols)
	if b.maxFeatures < 1 || b.maxFeatures >= p {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}
	feats := b.rng.Perm(p)[:b.maxFeatures]
	slices.Sort(feats)
	return feats
}

// bestSplit searches the candidate features for the split with the lowest
// total child impurity. Ties keep the first feature and threshold found.
func (b *builder) bestSplit(idx []int) (feature int, threshold, cost float64, ok bool) {
	cost = math.Inf(1)
	sorted := make([]int, len(idx))
	for _, f := range b.candidates() {
		x := b.cols[f]
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			switch {
			case x[a] < x[c]:
				return -1
			case x[a] > x[c]:
				return 1
			}
			return 0
		})
		pos, c, found := b.scan(sorted, x)
		if found && c < cost {
			feature, cost, ok = f, c, true
			threshold = (x[sorted[pos]] + x[sorted[pos+1]]) / 2
		}
	}
	return feature, threshold, cost, ok
}

// scan evaluates every split position of rows sorted by x and returns the
// last left position of the best split with its total child impurity.
func (b *builder) scan(sorted []int, x []float64) (int, float64, bool) {
	n := len(sorted)
	best, bestCost, found := -1, math.Inf(1), false

	if b.nClasses == 0 {
		var sum, sumSq float64
		for _, i := range sorted {
			sum += b.y[i]
			sumSq += b.y[i] * b.y[i]
		}
		var sL, qL float64
		for pos := 0; pos < n-1; pos++ {
			v := b.y[sorted[pos]]
			sL += v
			qL += v * v
			nL, nR := float64(pos+1), float64(n-pos-1)
			if !b.admissible(sorted, x, pos) {
				continue
			}
			sR, qR := sum-sL, sumSq-qL
			c := math.Max(qL-sL*sL/nL, 0) + math.Max(qR-sR*sR/nR, 0)
			if c < bestCost {
				best, bestCost, found = pos, c, true
			}
		}
		return best, bestCost, found
	}

	total := make([]float64, b.nClasses)
	for _, i := range sorted {
		total[int(b.y[i])]++
	}
	left := make([]float64, b.nClasses)
	pL := make([]float64, b.nClasses)
	pR := make([]float64, b.nClasses)
	for pos := 0; pos < n-1; pos++ {
		left[int(b.y[sorted[pos]])]++
		if !b.admissible(sorted, x, pos) {
			continue
		}
		nL, nR := float64(pos+1), float64(n-pos-1)
		for k := range left {
			pL[k] = left[k] / nL
			pR[k] = (total[k] - left[k]) / nR
		}
		c := nL*b.classImpurity(pL) + nR*b.classImpurity(pR)
		if c < bestCost {
			best, bestCost, found = pos, c, true
		}
	}
	return best, bestCost, found
}

// admissible reports whether splitting after position pos separates distinct
// values and leaves enough rows on both sides.
func (b *builder) admissible(sorted []int, x []float64, pos int) bool {
	n := len(sorted)
	if pos+1 < b.minSamplesLeaf || n-pos-1 < b.minSamplesLeaf {
		return false
	}
	return x[sorted[pos]] < x[sorted[pos+1]]
}

// columnLabels extracts y as a slice and checks it for NaN or Inf.
func columnLabels(op string, X, y mat.Matrix) ([]float64, error) {
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
