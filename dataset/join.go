package dataset

import (
	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Join returns the inner join of left and right on key. Rows follow left's
// order. A key value occurring more than once on either side is a
// DuplicateKeyError, and rows with a missing key are never matched.
// Non-key column names must not collide.
func Join(left, right *Table, key string) (*Table, error) {
	lk, err := left.Column(key)
	if err != nil {
		return nil, err
	}
	rk, err := right.Column(key)
	if err != nil {
		return nil, err
	}
	if lk.Kind.Categorical() != rk.Kind.Categorical() {
		return nil, errors.NewSchemaError("Join", key, "key has a different type on each side")
	}
	for _, name := range right.Names() {
		if name != key && left.Has(name) {
			return nil, errors.NewSchemaError("Join", name, "column exists on both sides")
		}
	}

	if _, err := uniqueKeys(lk, "left"); err != nil {
		return nil, err
	}
	rightRows, err := uniqueKeys(rk, "right")
	if err != nil {
		return nil, err
	}

	var li, ri []int
	for r := 0; r < lk.Len(); r++ {
		if lk.IsMissing(r) {
			continue
		}
		if m, ok := rightRows[lk.Label(r)]; ok {
			li = append(li, r)
			ri = append(ri, m)
		}
	}

	lt := left.Rows(li)
	rt := right.Drop(key).Rows(ri)
	cols := append(lt.Columns(), rt.Columns()...)
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	return out.WithRole(left.Role()), nil
}

func uniqueKeys(c *Column, side string) (map[string]int, error) {
	rows := make(map[string]int, c.Len())
	counts := make(map[string]int, c.Len())
	for r := 0; r < c.Len(); r++ {
		if c.IsMissing(r) {
			continue
		}
		k := c.Label(r)
		counts[k]++
		rows[k] = r
	}
	for r := 0; r < c.Len(); r++ {
		if c.IsMissing(r) {
			continue
		}
		if n := counts[c.Label(r)]; n > 1 {
			return nil, errors.NewDuplicateKeyError(c.Name, c.Label(r), side, n)
		}
	}
	return rows, nil
}
