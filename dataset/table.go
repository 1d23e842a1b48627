// Package dataset holds the observation table: ordered, named, typed columns
// with explicit missing values, plus Arrow IPC persistence, key joins and a
// synthetic symptom table generator.
//
// Tables are values: every operation returns a new Table and leaves its
// receiver untouched, so a Table can be shared across goroutines.
package dataset

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Role tags which partition a table came from.
type Role int

const (
	RoleNone Role = iota
	RoleTraining
	RoleTesting
)

func (r Role) String() string {
	switch r {
	case RoleTraining:
		return "training"
	case RoleTesting:
		return "testing"
	default:
		return "none"
	}
}

// Table is an ordered set of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	nrows int
	role  Role
}

// New builds a table. Columns must have equal length and distinct names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := t.index[c.Name]; dup {
			return nil, errors.NewSchemaError("dataset.New", c.Name, "duplicate column name")
		}
		t.index[c.Name] = i
		if i == 0 {
			t.nrows = c.Len()
		} else if c.Len() != t.nrows {
			return nil, errors.NewDimensionError("dataset.New", t.nrows, c.Len(), 0)
		}
	}
	return t, nil
}

func (t *Table) derive(cols []*Column) *Table {
	out := &Table{cols: cols, index: make(map[string]int, len(cols)), nrows: t.nrows, role: t.role}
	for i, c := range cols {
		out.index[c.Name] = i
	}
	if len(cols) > 0 {
		out.nrows = cols[0].Len()
	}
	return out
}

// NRows returns the number of rows.
func (t *Table) NRows() int { return t.nrows }

// NCols returns the number of columns.
func (t *Table) NCols() int { return len(t.cols) }

// Role returns the partition tag.
func (t *Table) Role() Role { return t.role }

// WithRole returns t tagged with r.
func (t *Table) WithRole(r Role) *Table {
	out := t.derive(t.cols)
	out.role = r
	return out
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy.
func (t *Table) Columns() []*Column {
	return slices.Clone(t.cols)
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.NewSchemaError("Column", name, "no such column")
	}
	return t.cols[i], nil
}

// Drop returns t without the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := make([]*Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	return t.derive(kept)
}

// Select returns the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	out := t.derive(cols)
	out.nrows = t.nrows
	return out, nil
}

// Replace substitutes the named column with zero or more columns at the
// same position. Resulting names must stay unique.
func (t *Table) Replace(name string, with ...*Column) (*Table, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.NewSchemaError("Replace", name, "no such column")
	}
	for _, c := range with {
		if c.Len() != t.nrows {
			return nil, errors.NewDimensionError("Replace", t.nrows, c.Len(), 0)
		}
		if j, exists := t.index[c.Name]; exists && j != i {
			return nil, errors.NewSchemaError("Replace", c.Name, "column already exists")
		}
	}
	cols := make([]*Column, 0, len(t.cols)-1+len(with))
	cols = append(cols, t.cols[:i]...)
	cols = append(cols, with...)
	cols = append(cols, t.cols[i+1:]...)
	out := t.derive(cols)
	out.nrows = t.nrows
	if len(out.index) != len(cols) {
		return nil, errors.NewSchemaError("Replace", name, "replacement introduces duplicate names")
	}
	return out, nil
}

// WithColumn appends c, or replaces the column of the same name.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if len(t.cols) > 0 && c.Len() != t.nrows {
		return nil, errors.NewDimensionError("WithColumn", t.nrows, c.Len(), 0)
	}
	if t.Has(c.Name) {
		return t.Replace(c.Name, c)
	}
	cols := append(slices.Clone(t.cols), c)
	return t.derive(cols), nil
}

// Rows returns the rows at idx, in that order.
func (t *Table) Rows(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.take(idx)
	}
	out := t.derive(cols)
	out.nrows = len(idx)
	return out
}

// CompleteRows returns the indices of rows with no missing value.
func (t *Table) CompleteRows() []int {
	idx := make([]int, 0, t.nrows)
	for r := 0; r < t.nrows; r++ {
		complete := true
		for _, c := range t.cols {
			if c.IsMissing(r) {
				complete = false
				break
			}
		}
		if complete {
			idx = append(idx, r)
		}
	}
	return idx
}

// Matrix returns the named continuous columns as an n×p matrix.
func (t *Table) Matrix(names []string) (*mat.Dense, error) {
	if t.nrows == 0 || len(names) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "matrix of %d rows and %d columns", t.nrows, len(names))
	}
	data := make([]float64, t.nrows*len(names))
	for j, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != Continuous {
			return nil, errors.NewSchemaError("Matrix", name, fmt.Sprintf("%s column must be encoded before modeling", c.Kind))
		}
		for i, v := range c.Num {
			if c.IsMissing(i) {
				return nil, errors.NewSchemaError("Matrix", name, fmt.Sprintf("missing value at row %d", i))
			}
			data[i*len(names)+j] = v
		}
	}
	return mat.NewDense(t.nrows, len(names), data), nil
}

// Equal reports whether two tables have identical columns in the same order.
// Roles are not compared.
func (t *Table) Equal(o *Table) bool {
	if t.nrows != o.nrows || len(t.cols) != len(o.cols) {
		return false
	}
	for i, c := range t.cols {
		if !c.Equal(o.cols[i]) {
			return false
		}
	}
	return true
}
