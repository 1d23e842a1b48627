package grid

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Set is an ordered list of parameters. The order is the declared order used
// for labels and for simplicity tie-breaks.
type Set []Param

// IDs returns the parameter IDs in declared order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, p := range s {
		ids[i] = p.ID
	}
	return ids
}

// Find returns the parameter with the given ID.
func (s Set) Find(id string) (Param, bool) {
	for _, p := range s {
		if p.ID == id {
			return p, true
		}
	}
	return Param{}, false
}

// Update replaces the parameter with p's ID.
func (s Set) Update(p Param) (Set, error) {
	out := slices.Clone(s)
	for i := range out {
		if out[i].ID == p.ID {
			out[i] = p
			return out, nil
		}
	}
	return nil, errors.NewValidationError("param", "not in the parameter set", p.ID)
}

// Resolved returns a UsageError wrapping errors.ErrUnresolvedParam naming the
// first parameter whose range still depends on the data.
func (s Set) Resolved() error {
	for _, p := range s {
		if p.Unknown {
			return errors.NewUsageError("grid",
				fmt.Sprintf("parameter %s depends on the training data; finalize it first", p.ID),
				errors.ErrUnresolvedParam)
		}
	}
	return nil
}

// DataInfo is what Finalize needs to know about the baked training design.
type DataInfo struct {
	NRows     int
	NFeatures int
}

// Finalize resolves data-dependent upper bounds: an Unknown upper bound
// becomes the number of predictor columns.
func Finalize(s Set, info DataInfo) (Set, error) {
	out := slices.Clone(s)
	for i, p := range out {
		if !p.Unknown {
			continue
		}
		if float64(info.NFeatures) < p.Lower {
			return nil, errors.NewValidationError(p.ID,
				fmt.Sprintf("training design has %d predictors, below the lower bound %g", info.NFeatures, p.Lower),
				info.NFeatures)
		}
		out[i] = p.WithRange(p.Lower, float64(info.NFeatures))
	}
	return out, nil
}

// Config binds a value to every parameter of a Set.
type Config map[string]float64

// Grid is an ordered list of configurations over a parameter set.
type Grid struct {
	Params  Set
	Configs []Config
}

// Len returns the number of configurations.
func (g *Grid) Len() int { return len(g.Configs) }

// ID names configuration i the way result tables do: Model01, Model02, ...
func (g *Grid) ID(i int) string { return fmt.Sprintf("Model%02d", i+1) }

// Label renders configuration i in declared parameter order.
func (g *Grid) Label(i int) string {
	return g.Params.Label(g.Configs[i])
}

// Label renders c in declared parameter order, e.g. "penalty=0.01 mixture=1".
func (s Set) Label(c Config) string {
	if len(s) == 0 {
		return "(none)"
	}
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.ID + "=" + strconv.FormatFloat(c[p.ID], 'g', 4, 64)
	}
	return strings.Join(parts, " ")
}

// CompareSimplicity returns -1 when a is the simpler configuration, 1 when b
// is, and 0 when they bind equal values. Parameters are compared in declared
// order and the first difference decides.
func (s Set) CompareSimplicity(a, b Config) int {
	for _, p := range s {
		x, y := a[p.ID], b[p.ID]
		if x == y {
			continue
		}
		if (x > y) == (p.Simpler == LargerIsSimpler) {
			return -1
		}
		return 1
	}
	return 0
}

// Empty returns the grid of a family with no tunable parameters: a single
// configuration binding nothing.
func Empty() *Grid {
	return &Grid{Configs: []Config{{}}}
}

// Validate checks every configuration against the parameter domains.
func (g *Grid) Validate() error {
	if err := g.Params.Resolved(); err != nil {
		return err
	}
	for i, c := range g.Configs {
		if len(c) != len(g.Params) {
			return errors.NewValidationError("config", fmt.Sprintf("%s binds %d of %d parameters", g.ID(i), len(c), len(g.Params)), c)
		}
		for _, p := range g.Params {
			v, ok := c[p.ID]
			if !ok {
				return errors.NewValidationError(p.ID, fmt.Sprintf("missing from %s", g.ID(i)), c)
			}
			if err := p.Validate(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cartesian crosses caller-supplied candidate values, given in each
// parameter's own units. Integer values are rounded, duplicates removed and
// values sorted ascending; the first parameter varies slowest.
func Cartesian(s Set, values map[string][]float64) (*Grid, error) {
	if err := s.Resolved(); err != nil {
		return nil, err
	}
	for id := range values {
		if _, ok := s.Find(id); !ok {
			return nil, errors.NewValidationError(id, "not in the parameter set", values[id])
		}
	}
	axes := make([][]float64, len(s))
	for i, p := range s {
		vs, ok := values[p.ID]
		if !ok || len(vs) == 0 {
			return nil, errors.NewValidationError(p.ID, "no candidate values", vs)
		}
		axis := make([]float64, 0, len(vs))
		for _, v := range vs {
			if p.Type == Integer {
				v = math.Round(v)
			}
			if err := p.Validate(v); err != nil {
				return nil, err
			}
			axis = append(axis, v)
		}
		sort.Float64s(axis)
		axes[i] = slices.Compact(axis)
	}
	return cross(s, axes), nil
}

// Regular places levels equally spaced values on each parameter's
// transformed scale, endpoints included, and crosses them. One level
// uses the midpoint.
func Regular(s Set, levels int) (*Grid, error) {
	if err := s.Resolved(); err != nil {
		return nil, err
	}
	if levels < 1 {
		return nil, errors.NewValidationError("levels", "must be at least 1", levels)
	}
	axes := make([][]float64, len(s))
	for i, p := range s {
		axis := make([]float64, 0, levels)
		for k := 0; k < levels; k++ {
			u := (p.Lower + p.Upper) / 2
			if levels > 1 {
				u = p.Lower + (p.Upper-p.Lower)*float64(k)/float64(levels-1)
			}
			axis = append(axis, p.natural(u))
		}
		axes[i] = slices.Compact(axis)
	}
	return cross(s, axes), nil
}

// Random draws size configurations uniformly on each transformed scale.
// Duplicates after integer rounding are dropped, so the grid may be smaller.
func Random(s Set, size int, seed uint64) (*Grid, error) {
	if err := s.Resolved(); err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.NewValidationError("size", "must be at least 1", size)
	}
	r := rand.New(rand.NewPCG(seed, seed))
	configs := make([]Config, 0, size)
	for k := 0; k < size; k++ {
		c := make(Config, len(s))
		for _, p := range s {
			c[p.ID] = p.natural(p.Lower + (p.Upper-p.Lower)*r.Float64())
		}
		configs = append(configs, c)
	}
	return &Grid{Params: s, Configs: dedupe(s, configs)}, nil
}

// LatinHypercube draws a space-filling design: each parameter's range is cut
// into size equal strata and every stratum is used exactly once.
func LatinHypercube(s Set, size int, seed uint64) (*Grid, error) {
	if err := s.Resolved(); err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.NewValidationError("size", "must be at least 1", size)
	}
	r := rand.New(rand.NewPCG(seed, seed))
	configs := make([]Config, size)
	for k := range configs {
		configs[k] = make(Config, len(s))
	}
	for _, p := range s {
		perm := r.Perm(size)
		for k, stratum := range perm {
			u := (float64(stratum) + r.Float64()) / float64(size)
			configs[k][p.ID] = p.natural(p.Lower + (p.Upper-p.Lower)*u)
		}
	}
	return &Grid{Params: s, Configs: dedupe(s, configs)}, nil
}

func cross(s Set, axes [][]float64) *Grid {
	configs := []Config{{}}
	for i, p := range s {
		next := make([]Config, 0, len(configs)*len(axes[i]))
		for _, c := range configs {
			for _, v := range axes[i] {
				nc := make(Config, len(c)+1)
				for k, x := range c {
					nc[k] = x
				}
				nc[p.ID] = v
				next = append(next, nc)
			}
		}
		configs = next
	}
	return &Grid{Params: s, Configs: configs}
}

func dedupe(s Set, configs []Config) []Config {
	seen := make(map[string]bool, len(configs))
	out := configs[:0]
	for _, c := range configs {
		var key strings.Builder
		for _, p := range s {
			key.WriteString(strconv.FormatFloat(c[p.ID], 'g', -1, 64))
			key.WriteByte('|')
		}
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		out = append(out, c)
	}
	return out
}
