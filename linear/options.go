package linear

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// WithTol sets the relative singular value cutoff used to determine the rank
// of the design matrix
func WithTol(tol float64) Option {
	return func(lr *LinearRegression) {
		lr.tol = tol
	}
}

// ElasticNetOption is a function that configures ElasticNet
type ElasticNetOption func(*ElasticNet)

// WithPenalty sets the total regularization amount λ
func WithPenalty(lambda float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.Penalty = lambda
	}
}

// WithMixture sets the proportion α of the L1 penalty (1 = lasso, 0 = ridge)
func WithMixture(alpha float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.Mixture = alpha
	}
}

// WithMaxIter sets the maximum number of coordinate descent sweeps
func WithMaxIter(n int) ElasticNetOption {
	return func(en *ElasticNet) {
		en.maxIter = n
	}
}

// WithENetTol sets the convergence tolerance on the largest coefficient change
func WithENetTol(tol float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.tol = tol
	}
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// WithLRPenalty sets the total regularization amount λ. Zero fits an
// unpenalized model by Newton iterations.
func WithLRPenalty(lambda float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.Penalty = lambda
	}
}

// WithLRMixture sets the proportion α of the L1 penalty
func WithLRMixture(alpha float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.Mixture = alpha
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}
