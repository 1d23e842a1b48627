// Package log defines standard attribute keys for model comparison runs.
//
// The keys follow a hierarchical naming convention (e.g. "model.name",
// "tune.config") so that a run's logs can be filtered by stage: data
// preparation, resampling, tuning and the final fit on the test partition.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "LinearRegression", "DecisionTreeRegressor", "RandomForest"
	ModelNameKey = "model.name"

	// FamilyKey identifies the model family being compared.
	// Examples: "baseline", "regularized_linear", "random_forest"
	FamilyKey = "model.family"

	// ModeKey is "regression" or "classification".
	ModeKey = "model.mode"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "clean", "split", "tune", "last_fit"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the stage of the workflow.
	PhaseKey = "ml.phase"

	// RunIDKey is the identifier of a tuning run.
	RunIDKey = "run.id"
)

// Data Shape
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of predictor columns in the design matrix.
	FeaturesKey = "data.features"

	// ColumnKey names a table column.
	ColumnKey = "data.column"

	// DroppedKey lists columns removed by cleaning.
	DroppedKey = "data.dropped"
)

// Resampling and Tuning
const (
	// FoldKey identifies a resample, e.g. "Repeat1/Fold03".
	FoldKey = "resample.fold"

	// FoldsKey is the number of resamples.
	FoldsKey = "resample.count"

	// ConfigKey is the canonical key of a hyperparameter configuration.
	ConfigKey = "tune.config"

	// ConfigsKey is the number of configurations in a grid.
	ConfigsKey = "tune.configs"

	// FailuresKey counts failed fits for a configuration.
	FailuresKey = "tune.failures"

	// MetricKey names a performance metric.
	MetricKey = "metrics.name"

	// MetricValueKey is the value of MetricKey.
	MetricValueKey = "metrics.value"

	// WorkerIDKey identifies a worker goroutine in the tuning pool.
	WorkerIDKey = "infra.worker_id"

	// WorkersKey is the size of the tuning pool.
	WorkersKey = "infra.workers"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the iteration number of an iterative solver.
	IterationKey = "training.iteration"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the error encountered.
	ErrorTypeKey = "error.type"
)

// Configuration
const (
	// HyperParamsKey contains model hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationClean   = "clean"
	OperationSplit   = "split"
	OperationTune    = "tune"
	OperationLastFit = "last_fit"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted   = "NOT_FITTED"
	ErrorSchema      = "SCHEMA"
	ErrorPartition   = "PARTITION"
	ErrorFit         = "FIT_FAILURE"
	ErrorSelection   = "SELECTION"
	ErrorConvergence = "CONVERGENCE_FAILURE"
)
