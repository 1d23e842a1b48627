// Package tidytune compares tuned model families on tabular clinical data.
//
// A run cleans an observation table, splits it into training and testing
// partitions, resamples the training partition with repeated v-fold
// cross-validation, scores every configuration of every family's grid on
// every fold, selects the best configuration per family and refits it on the
// whole training partition. The testing partition is touched exactly once,
// by the final evaluation.
//
// # Quick Start
//
//	raw, _ := dataset.LoadFile("symptoms.arrow")
//	tbl, _, err := clean.Clean(raw, clean.Options{Required: []string{"BodyTemp"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cmp, err := compare.Run(ctx, tbl, compare.DefaultConfig("BodyTemp", model.Regression))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report.RenderTable(os.Stdout, cmp.Summaries())
//
// # Packages
//
//   - dataset: typed columnar tables, Arrow IPC files, joins, simulated data
//   - clean: declarative cleaning (drops, ordinal coercion, redundancy, near-zero variance)
//   - resample: stratified initial split and repeated v-fold cross-validation
//   - recipe: preprocessing steps learned on training rows only
//   - grid: tunable parameters and regular, random, latin hypercube and Cartesian grids
//   - workflow: model families bound to a recipe
//   - tune: cross-validated grid search, selection and last fit
//   - compare: the whole comparison for every family
//   - report: summaries, tables, curves, plots and checkpoints
//   - baseline, linear, tree, ensemble: the estimators behind the families
//   - metrics: regression and binary classification metrics
//   - core/parallel: the bounded worker pool used by the search
//
// The tidytune command (cmd/tidytune) drives the same pipeline from a YAML
// configuration.
package tidytune
