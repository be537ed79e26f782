package schema

import (
	"bytes"
	"sort"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Canonical returns the order-independent form of s used by Equal and
// Hash. Tables and columns are sorted by name and the columns inside each
// unique set are sorted. Version is not included.
func (s *Schema) Canonical() ir.Object {
	tables := make([]*Table, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	arr := make(ir.Array, len(tables))
	for i, t := range tables {
		arr[i] = t.Canonical()
	}
	return ir.Object{"tables": arr}
}

// Canonical returns the order-independent form of t.
func (t *Table) Canonical() ir.Object {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	colArr := make(ir.Array, len(cols))
	for i, c := range cols {
		obj := ir.Object{
			"name":     ir.String(c.Name),
			"type":     ir.String(c.Type),
			"nullable": ir.Boolean(c.Nullable),
		}
		if c.ForeignKey != nil {
			obj["references"] = ir.Object{
				"table":  ir.String(c.ForeignKey.Table),
				"column": ir.String(c.ForeignKey.Column),
			}
		}
		colArr[i] = obj
	}

	uniques := uniqueKeys(t.Uniques)
	uniqArr := make(ir.Array, len(uniques))
	for i, u := range uniques {
		set := make(ir.Array, len(u))
		for j, c := range u {
			set[j] = ir.String(c)
		}
		uniqArr[i] = set
	}

	return ir.Object{
		"name":    ir.String(t.Name),
		"columns": colArr,
		"uniques": uniqArr,
	}
}

// uniqueKeys sorts the columns of every unique set, then the sets, and
// drops duplicate sets.
func uniqueKeys(us []Unique) [][]string {
	keys := make([][]string, 0, len(us))
	seen := make(map[string]bool, len(us))
	for _, u := range us {
		cols := append([]string(nil), u.Columns...)
		sort.Strings(cols)
		k := strings.Join(cols, "\x00")
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, cols)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Join(keys[i], "\x00") < strings.Join(keys[j], "\x00")
	})
	return keys
}

// Equal reports whether a and b describe the same tables. Declaration
// order and Version are ignored.
func Equal(a, b *Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	// Canonical forms contain no nulls, so marshaling cannot fail.
	ab, _ := ir.MarshalCanonical(a.Canonical())
	bb, _ := ir.MarshalCanonical(b.Canonical())
	return bytes.Equal(ab, bb)
}

// Hash returns the content hash of s's canonical form.
func Hash(s *Schema) (string, error) {
	return ir.Hash(ir.DomainSchema, s.Canonical())
}

// Hash returns the content hash of t's canonical form.
func (t *Table) Hash() (string, error) {
	return ir.Hash(ir.DomainTable, t.Canonical())
}
