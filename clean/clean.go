// Package clean turns a raw observation table into a modeling-ready one.
//
// Cleaning is declarative: Options lists the required columns, the columns to
// drop, the columns to coerce to ordered levels and the near-zero-variance
// threshold. Clean(Clean(t)) == Clean(t) for any Options.
package clean

import (
	"fmt"
	"slices"

	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

// DefaultMinMinority is the near-zero-variance threshold used when
// Options.MinMinority is zero.
const DefaultMinMinority = 50

// Ordered declares a column whose labels follow a fixed order.
type Ordered struct {
	Column string   `mapstructure:"column" yaml:"column" json:"column"`
	Levels []string `mapstructure:"levels" yaml:"levels" json:"levels"`
}

// Options configures Clean.
type Options struct {
	// Required columns must be present; they are never dropped as near-zero variance.
	Required []string `mapstructure:"required" yaml:"required" json:"required"`
	// Drop lists redundant columns. Absent names are ignored.
	Drop []string `mapstructure:"drop" yaml:"drop" json:"drop"`
	// Ordered columns are coerced to dataset.Ordinal.
	Ordered []Ordered `mapstructure:"ordered" yaml:"ordered" json:"ordered"`
	// DropRedundant removes categorical columns that are a deterministic
	// re-encoding of another retained categorical column.
	DropRedundant bool `mapstructure:"drop_redundant" yaml:"drop_redundant" json:"drop_redundant"`
	// MinMinority drops categorical columns whose rarest used level has
	// fewer rows. Every categorical kind is filtered, so an ordinal with a
	// rare top grade (Severe) goes too; list it in Protect to keep it.
	// Zero means DefaultMinMinority; negative disables the filter.
	MinMinority int `mapstructure:"min_minority" yaml:"min_minority" json:"min_minority"`
	// Protect lists columns exempt from the redundancy and variance filters.
	Protect []string `mapstructure:"protect" yaml:"protect" json:"protect"`

	Logger log.Logger `mapstructure:"-" yaml:"-" json:"-"`
}

// Report describes what Clean changed.
type Report struct {
	Dropped          []string `yaml:"dropped" json:"dropped"`
	Coerced          []string `yaml:"coerced" json:"coerced"`
	Redundant        []string `yaml:"redundant" json:"redundant"`
	NearZeroVariance []string `yaml:"near_zero_variance" json:"near_zero_variance"`
	RowsIn           int      `yaml:"rows_in" json:"rows_in"`
	RowsRemoved      int      `yaml:"rows_removed" json:"rows_removed"`
}

// Changed reports whether Clean modified the table.
func (r Report) Changed() bool {
	return len(r.Dropped)+len(r.Coerced)+len(r.Redundant)+len(r.NearZeroVariance)+r.RowsRemoved > 0
}

// Clean applies, in order: the required-column check, the drop list, ordinal
// coercion, removal of rows with any missing value, the redundancy filter and
// the near-zero-variance filter. Level counts are taken on complete rows, so
// a second pass finds nothing left to change.
func Clean(t *dataset.Table, opts Options) (*dataset.Table, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("clean")
	}
	report := Report{RowsIn: t.NRows()}

	for _, name := range opts.Required {
		if slices.Contains(opts.Drop, name) {
			return nil, report, errors.NewValidationError("drop", "required column listed for dropping", name)
		}
		if !t.Has(name) {
			return nil, report, errors.NewSchemaError("Clean", name, "required column is missing")
		}
	}

	for _, name := range opts.Drop {
		if t.Has(name) {
			report.Dropped = append(report.Dropped, name)
		}
	}
	out := t.Drop(opts.Drop...)

	for _, spec := range opts.Ordered {
		col, err := out.Column(spec.Column)
		if err != nil {
			return nil, report, err
		}
		if col.Kind == dataset.Ordinal && slices.Equal(col.Levels, spec.Levels) {
			continue
		}
		if !col.Kind.Categorical() {
			return nil, report, errors.NewSchemaError("Clean", spec.Column, "cannot coerce a continuous column to ordered levels")
		}
		ord, err := col.Recode(dataset.Ordinal, spec.Levels)
		if err != nil {
			return nil, report, errors.NewSchemaError("Clean", spec.Column, fmt.Sprintf("cannot coerce to levels %v: %v", spec.Levels, err))
		}
		if out, err = out.Replace(spec.Column, ord); err != nil {
			return nil, report, err
		}
		report.Coerced = append(report.Coerced, spec.Column)
		errors.Warn(errors.NewDataConversionWarning(col.Kind.String(), "ordinal",
			fmt.Sprintf("column '%s' declared with ordered levels %v", spec.Column, spec.Levels)))
	}

	complete := out.CompleteRows()
	if len(complete) < out.NRows() {
		report.RowsRemoved = out.NRows() - len(complete)
		out = out.Rows(complete)
	}

	protected := make(map[string]bool, len(opts.Protect)+len(opts.Required))
	for _, name := range append(slices.Clone(opts.Protect), opts.Required...) {
		protected[name] = true
	}

	if opts.DropRedundant {
		report.Redundant = redundantColumns(out, protected)
		out = out.Drop(report.Redundant...)
	}

	threshold := opts.MinMinority
	if threshold == 0 {
		threshold = DefaultMinMinority
	}
	if threshold > 0 {
		for _, col := range out.Columns() {
			if protected[col.Name] || !col.Kind.Categorical() {
				continue
			}
			if minority(col) < threshold {
				report.NearZeroVariance = append(report.NearZeroVariance, col.Name)
			}
		}
		out = out.Drop(report.NearZeroVariance...)
	}

	logger.Info("table cleaned",
		log.OperationKey, log.OperationClean,
		log.SamplesKey, out.NRows(),
		"rows_removed", report.RowsRemoved,
		log.DroppedKey, append(append(slices.Clone(report.Dropped), report.Redundant...), report.NearZeroVariance...),
		"coerced", report.Coerced,
	)
	return out, report, nil
}

// minority returns the row count of the rarest used level, or 0 when fewer
// than two levels are used.
func minority(c *dataset.Column) int {
	used, least := 0, 0
	for _, n := range c.Counts() {
		if n == 0 {
			continue
		}
		if used == 0 || n < least {
			least = n
		}
		used++
	}
	if used < 2 {
		return 0
	}
	return least
}

// redundantColumns finds categorical columns determined by another retained
// categorical column. Identifier columns determine everything and are
// skipped. Of two columns that determine each other the later one is dropped.
func redundantColumns(t *dataset.Table, protected map[string]bool) []string {
	cols := t.Columns()
	dropped := make(map[string]bool)
	var out []string
	for j, b := range cols {
		if protected[b.Name] || !b.Kind.Categorical() {
			continue
		}
		for i, a := range cols {
			if i == j || dropped[a.Name] || !a.Kind.Categorical() || identifier(a) {
				continue
			}
			if !determines(a, b) {
				continue
			}
			mutual := determines(b, a)
			if mutual && i > j {
				continue
			}
			dropped[b.Name] = true
			out = append(out, b.Name)
			break
		}
	}
	return out
}

// identifier reports whether every row holds a distinct level.
func identifier(c *dataset.Column) bool {
	used := 0
	for _, n := range c.Counts() {
		if n > 1 {
			return false
		}
		used += n
	}
	return used > 0
}

// determines reports whether every level of a maps to a single level of b.
func determines(a, b *dataset.Column) bool {
	image := make(map[int]int, len(a.Levels))
	for r, code := range a.Codes {
		if prev, ok := image[code]; ok {
			if prev != b.Codes[r] {
				return false
			}
			continue
		}
		image[code] = b.Codes[r]
	}
	return true
}
