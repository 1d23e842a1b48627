package dataset

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Kind is the measurement type of a column.
type Kind int

const (
	// Continuous columns hold float64 values; NaN marks a missing value.
	Continuous Kind = iota
	// Binary columns hold one of exactly two levels.
	Binary
	// Ordinal columns hold levels with a fixed order.
	Ordinal
	// Nominal columns hold unordered levels.
	Nominal
)

// Missing is the level code of a missing categorical value.
const Missing = -1

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Ordinal:
		return "ordinal"
	case Nominal:
		return "nominal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "continuous":
		return Continuous, nil
	case "binary":
		return Binary, nil
	case "ordinal":
		return Ordinal, nil
	case "nominal":
		return Nominal, nil
	}
	return Continuous, errors.NewValueError("ParseKind", fmt.Sprintf("unknown column kind %q", s))
}

// Categorical reports whether values are level codes.
func (k Kind) Categorical() bool { return k != Continuous }

// Column is a named, typed vector. Continuous columns use Num,
// categorical columns use Codes indexing into Levels.
// Columns are treated as immutable once they belong to a Table.
type Column struct {
	Name   string
	Kind   Kind
	Levels []string
	Num    []float64
	Codes  []int
}

// NewContinuous creates a continuous column. NaN marks missing values.
func NewContinuous(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Continuous, Num: values}
}

// NewCategorical creates a categorical column from labels. Empty strings and
// "NA" are missing. A label outside levels is a SchemaError.
func NewCategorical(name string, kind Kind, levels []string, labels []string) (*Column, error) {
	if err := checkLevels(name, kind, levels); err != nil {
		return nil, err
	}
	lookup := make(map[string]int, len(levels))
	for i, l := range levels {
		lookup[l] = i
	}
	codes := make([]int, len(labels))
	for i, label := range labels {
		if isMissingLabel(label) {
			codes[i] = Missing
			continue
		}
		code, ok := lookup[label]
		if !ok {
			return nil, errors.NewSchemaError("NewCategorical", name,
				fmt.Sprintf("label %q is not one of the levels %v", label, levels))
		}
		codes[i] = code
	}
	return &Column{Name: name, Kind: kind, Levels: slices.Clone(levels), Codes: codes}, nil
}

// NewCoded creates a categorical column from level codes.
func NewCoded(name string, kind Kind, levels []string, codes []int) (*Column, error) {
	if err := checkLevels(name, kind, levels); err != nil {
		return nil, err
	}
	for _, c := range codes {
		if c != Missing && (c < 0 || c >= len(levels)) {
			return nil, errors.NewSchemaError("NewCoded", name, fmt.Sprintf("code %d out of range for %d levels", c, len(levels)))
		}
	}
	return &Column{Name: name, Kind: kind, Levels: slices.Clone(levels), Codes: codes}, nil
}

func checkLevels(name string, kind Kind, levels []string) error {
	if !kind.Categorical() {
		return errors.NewSchemaError("NewCategorical", name, "kind must be binary, ordinal or nominal")
	}
	if kind == Binary && len(levels) != 2 {
		return errors.NewSchemaError("NewCategorical", name, fmt.Sprintf("binary column needs 2 levels, got %d", len(levels)))
	}
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		if isMissingLabel(l) {
			return errors.NewSchemaError("NewCategorical", name, "empty or NA level")
		}
		if seen[l] {
			return errors.NewSchemaError("NewCategorical", name, fmt.Sprintf("duplicate level %q", l))
		}
		seen[l] = true
	}
	return nil
}

func isMissingLabel(s string) bool {
	return s == "" || s == "NA"
}

// Len returns the number of values.
func (c *Column) Len() int {
	if c.Kind == Continuous {
		return len(c.Num)
	}
	return len(c.Codes)
}

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Continuous {
		return math.IsNaN(c.Num[i])
	}
	return c.Codes[i] == Missing
}

// MissingCount returns the number of missing values.
func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Label returns row i as text; missing values are "".
func (c *Column) Label(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	if c.Kind == Continuous {
		return strconv.FormatFloat(c.Num[i], 'g', -1, 64)
	}
	return c.Levels[c.Codes[i]]
}

// Float returns the value of row i, or the level code for categorical
// columns. Missing values are NaN.
func (c *Column) Float(i int) float64 {
	if c.IsMissing(i) {
		return math.NaN()
	}
	if c.Kind == Continuous {
		return c.Num[i]
	}
	return float64(c.Codes[i])
}

// Counts returns the number of non-missing rows per level.
func (c *Column) Counts() []int {
	counts := make([]int, len(c.Levels))
	for _, code := range c.Codes {
		if code != Missing {
			counts[code]++
		}
	}
	return counts
}

// Recode returns a copy of a categorical column with a new kind and level
// order. Every present label must be among levels.
func (c *Column) Recode(kind Kind, levels []string) (*Column, error) {
	if !c.Kind.Categorical() {
		return nil, errors.NewSchemaError("Recode", c.Name, "cannot recode a continuous column")
	}
	labels := make([]string, c.Len())
	for i := range labels {
		labels[i] = c.Label(i)
	}
	return NewCategorical(c.Name, kind, levels, labels)
}

// Renamed returns a shallow copy of c under a new name.
func (c *Column) Renamed(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Levels: c.Levels}
	if c.Kind == Continuous {
		out.Num = make([]float64, len(idx))
		for i, r := range idx {
			out.Num[i] = c.Num[r]
		}
		return out
	}
	out.Codes = make([]int, len(idx))
	for i, r := range idx {
		out.Codes[i] = c.Codes[r]
	}
	return out
}

// Equal reports whether two columns have the same name, kind, levels and values.
// Missing values compare equal to each other.
func (c *Column) Equal(o *Column) bool {
	if c.Name != o.Name || c.Kind != o.Kind || c.Len() != o.Len() || !slices.Equal(c.Levels, o.Levels) {
		return false
	}
	if c.Kind == Continuous {
		for i, v := range c.Num {
			w := o.Num[i]
			if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
				return false
			}
		}
		return true
	}
	return slices.Equal(c.Codes, o.Codes)
}
