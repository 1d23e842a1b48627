// Package resample partitions a table into training and testing sets and the
// training set into repeated V-fold resamples.
//
// Every partition is a pure function of its inputs and seed: row indices are
// shuffled with a math/rand/v2 PCG source and returned in ascending order.
package resample

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Split is a stratified training/testing partition of a table.
type Split struct {
	data *dataset.Table

	// Train and Test are disjoint ascending row indices covering every row.
	Train []int
	Test  []int

	Prop   float64
	Strata string
	Seed   uint64
}

// Training returns the training rows tagged dataset.RoleTraining.
func (s *Split) Training() *dataset.Table {
	return s.data.Rows(s.Train).WithRole(dataset.RoleTraining)
}

// Testing returns the held-out rows tagged dataset.RoleTesting.
func (s *Split) Testing() *dataset.Table {
	return s.data.Rows(s.Test).WithRole(dataset.RoleTesting)
}

// Data returns the table that was split.
func (s *Split) Data() *dataset.Table { return s.data }

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// InitialSplit puts floor(prop*n) rows in the training set. The training
// count is allocated across strata by largest remainder, so each stratum is
// represented in proportion; strata of a continuous column are its quantile
// bins (see WithBreaks). An empty strata name disables stratification.
func InitialSplit(t *dataset.Table, prop float64, strata string, seed uint64, opts ...Option) (*Split, error) {
	n := t.NRows()
	params := map[string]interface{}{"prop": prop, "n": n}
	if !(prop > 0 && prop < 1) {
		return nil, errors.NewPartitionError("InitialSplit", "proportion must be in (0, 1)", params)
	}
	nTrain := int(math.Floor(prop * float64(n)))
	if nTrain == 0 || nTrain == n {
		return nil, errors.NewPartitionError("InitialSplit", "split leaves one side empty", params)
	}

	o := applyOptions(opts)
	strataRows, err := groups(t, strata, o.breaks)
	if err != nil {
		return nil, err
	}
	quota := allocate(strataRows, prop, nTrain)

	r := newRand(seed)
	train := make([]int, 0, nTrain)
	test := make([]int, 0, n-nTrain)
	for g, rows := range strataRows {
		rows = slices.Clone(rows)
		r.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		train = append(train, rows[:quota[g]]...)
		test = append(test, rows[quota[g]:]...)
	}
	sort.Ints(train)
	sort.Ints(test)

	return &Split{data: t, Train: train, Test: test, Prop: prop, Strata: strata, Seed: seed}, nil
}

// allocate distributes total across groups proportionally to their sizes:
// each group gets floor(prop*size), and the rows left over go to the groups
// with the largest fractional parts, earlier groups first on ties.
func allocate(groups [][]int, prop float64, total int) []int {
	quota := make([]int, len(groups))
	frac := make([]float64, len(groups))
	assigned := 0
	for g, rows := range groups {
		exact := prop * float64(len(rows))
		quota[g] = int(math.Floor(exact))
		frac[g] = exact - float64(quota[g])
		assigned += quota[g]
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
	for k := 0; assigned < total; k++ {
		g := order[k%len(order)]
		if quota[g] < len(groups[g]) {
			quota[g]++
			assigned++
		}
	}
	return quota
}
