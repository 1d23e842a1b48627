package resample

import (
	"fmt"
	"slices"
	"sort"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Fold is one (analysis, assessment) pair of row indices into the training table.
type Fold struct {
	ID         string
	Repeat     int
	Index      int
	Analysis   []int
	Assessment []int
}

// Resamples holds the V×R folds of a training table.
type Resamples struct {
	data *dataset.Table

	Folds   []Fold
	V       int
	Repeats int
	Strata  string
	Seed    uint64
}

// Data returns the training table the folds index into.
func (r *Resamples) Data() *dataset.Table { return r.data }

// Len returns the number of folds.
func (r *Resamples) Len() int { return len(r.Folds) }

// Analysis returns the analysis rows of fold i.
func (r *Resamples) Analysis(i int) *dataset.Table {
	return r.data.Rows(r.Folds[i].Analysis).WithRole(dataset.RoleTraining)
}

// Assessment returns the assessment rows of fold i.
func (r *Resamples) Assessment(i int) *dataset.Table {
	return r.data.Rows(r.Folds[i].Assessment).WithRole(dataset.RoleTraining)
}

// VFold builds repeats×v folds of train. Within a repeat each stratum is
// shuffled and its rows are dealt round-robin over the folds, continuing
// from where the previous stratum stopped, so assessment sizes differ by at
// most one and every row is assessed exactly once per repeat.
//
// A table tagged dataset.RoleTesting is rejected with a UsageError wrapping
// errors.ErrLeakage.
func VFold(train *dataset.Table, v, repeats int, strata string, seed uint64, opts ...Option) (*Resamples, error) {
	if train.Role() == dataset.RoleTesting {
		return nil, errors.NewUsageError("VFold", "resamples must not be drawn from the testing partition", errors.ErrLeakage)
	}
	n := train.NRows()
	params := map[string]interface{}{"v": v, "repeats": repeats, "n": n}
	switch {
	case v < 2:
		return nil, errors.NewPartitionError("VFold", "fold count must be at least 2", params)
	case repeats < 1:
		return nil, errors.NewPartitionError("VFold", "repeat count must be at least 1", params)
	case v > n:
		return nil, errors.NewPartitionError("VFold", "more folds than rows leaves an assessment set empty", params)
	}

	o := applyOptions(opts)
	strataRows, err := groups(train, strata, o.breaks)
	if err != nil {
		return nil, err
	}

	r := newRand(seed)
	out := &Resamples{data: train, V: v, Repeats: repeats, Strata: strata, Seed: seed}
	for rep := 1; rep <= repeats; rep++ {
		assess := make([][]int, v)
		offset := 0
		for _, rows := range strataRows {
			rows = slices.Clone(rows)
			r.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
			for k, row := range rows {
				f := (offset + k) % v
				assess[f] = append(assess[f], row)
			}
			offset = (offset + len(rows)) % v
		}

		for f := 0; f < v; f++ {
			sort.Ints(assess[f])
			out.Folds = append(out.Folds, Fold{
				ID:         foldID(rep, f+1, repeats),
				Repeat:     rep,
				Index:      f + 1,
				Analysis:   complement(n, assess[f]),
				Assessment: assess[f],
			})
		}
	}
	return out, nil
}

func foldID(repeat, fold, repeats int) string {
	if repeats == 1 {
		return fmt.Sprintf("Fold%02d", fold)
	}
	return fmt.Sprintf("Repeat%d/Fold%02d", repeat, fold)
}

// complement returns the rows of [0, n) not in sorted.
func complement(n int, sorted []int) []int {
	out := make([]int, 0, n-len(sorted))
	k := 0
	for i := 0; i < n; i++ {
		if k < len(sorted) && sorted[k] == i {
			k++
			continue
		}
		out = append(out, i)
	}
	return out
}
