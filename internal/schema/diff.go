package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DiffKind classifies one Difference.
type DiffKind string

const (
	MissingTable   DiffKind = "missing_table"
	ExtraTable     DiffKind = "extra_table"
	MissingColumn  DiffKind = "missing_column"
	ExtraColumn    DiffKind = "extra_column"
	ColumnMismatch DiffKind = "column_mismatch"
	UniqueMismatch DiffKind = "unique_mismatch"
)

// Difference is one way a live schema departs from the declared one.
type Difference struct {
	Kind     DiffKind `json:"kind"`
	Table    string   `json:"table"`
	Column   string   `json:"column,omitempty"`
	Declared string   `json:"declared,omitempty"`
	Live     string   `json:"live,omitempty"`
}

func (d Difference) String() string {
	target := d.Table
	if d.Column != "" {
		target += "." + d.Column
	}
	switch d.Kind {
	case MissingTable, MissingColumn:
		return fmt.Sprintf("%s: declared but not present", target)
	case ExtraTable, ExtraColumn:
		return fmt.Sprintf("%s: present but not declared", target)
	default:
		return fmt.Sprintf("%s: declared %s, found %s", target, d.Declared, d.Live)
	}
}

// Diff lists the differences between declared and live, sorted by table
// then column. An empty result means Equal(declared, live).
func Diff(declared, live *Schema) []Difference {
	var out []Difference

	for _, dt := range declared.Tables {
		lt, ok := live.Lookup(dt.Name)
		if !ok {
			out = append(out, Difference{Kind: MissingTable, Table: dt.Name})
			continue
		}
		out = append(out, diffTable(dt, lt)...)
	}
	for _, lt := range live.Tables {
		if _, ok := declared.Lookup(lt.Name); !ok {
			out = append(out, Difference{Kind: ExtraTable, Table: lt.Name})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func diffTable(dt, lt *Table) []Difference {
	var out []Difference
	for _, dc := range dt.Columns {
		lc, ok := lt.Column(dc.Name)
		if !ok {
			out = append(out, Difference{Kind: MissingColumn, Table: dt.Name, Column: dc.Name})
			continue
		}
		if d, l := dc.String(), lc.String(); d != l {
			out = append(out, Difference{Kind: ColumnMismatch, Table: dt.Name, Column: dc.Name, Declared: d, Live: l})
		}
	}
	for _, lc := range lt.Columns {
		if _, ok := dt.Column(lc.Name); !ok {
			out = append(out, Difference{Kind: ExtraColumn, Table: lt.Name, Column: lc.Name})
		}
	}

	d, l := formatUniques(dt.Uniques), formatUniques(lt.Uniques)
	if d != l {
		out = append(out, Difference{Kind: UniqueMismatch, Table: dt.Name, Declared: d, Live: l})
	}
	return out
}

func formatUniques(us []Unique) string {
	keys := uniqueKeys(us)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "(" + strings.Join(k, ", ") + ")"
	}
	return "[" + strings.Join(parts, " ") + "]"
}
