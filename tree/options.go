package tree

// Option configures a DecisionTreeRegressor or DecisionTreeClassifier.
type Option func(*params)

// WithCriterion sets the impurity measure: "squared_error" for regression,
// "gini" or "entropy" for classification.
func WithCriterion(criterion string) Option {
	return func(p *params) {
		p.criterion = criterion
	}
}

// WithMaxDepth sets the maximum depth of the tree. The root has depth 0;
// values below 1 mean no limit.
func WithMaxDepth(depth int) Option {
	return func(p *params) {
		p.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of rows a node needs to be split.
func WithMinSamplesSplit(n int) Option {
	return func(p *params) {
		p.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of rows in each child of a split.
func WithMinSamplesLeaf(n int) Option {
	return func(p *params) {
		p.minSamplesLeaf = n
	}
}

// WithCCP sets the complexity parameter: a split is kept only when it lowers
// the total impurity by at least ccp times the root's total impurity.
func WithCCP(ccp float64) Option {
	return func(p *params) {
		p.ccpAlpha = ccp
	}
}

// WithMaxFeatures sets the number of features drawn at random as split
// candidates at each node. Values below 1 use every feature.
func WithMaxFeatures(n int) Option {
	return func(p *params) {
		p.maxFeatures = n
	}
}

// WithRandomState sets the seed of the feature sampler.
func WithRandomState(seed uint64) Option {
	return func(p *params) {
		p.randomState = seed
	}
}
