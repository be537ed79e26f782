// Package schema models the tables a database version holds.
//
// A Schema is a pure value: a set of tables, each with typed columns,
// optional foreign keys and unique column sets. Every table also owns an
// implicit "id" column (an auto-assigned INTEGER primary key) that is
// never listed in Columns.
//
// Schemas are built either declaratively through New/Table or by reading a
// live SQLite database with ReadLive. Equal and Hash compare schemas by
// structure only; declaration order and Version do not participate.
package schema

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// IDColumn is the implicit primary key every table carries.
const IDColumn = "id"

// Schema is one version of a database's tables.
type Schema struct {
	Version int64
	Tables  []*Table
}

// Table is one table of a Schema.
type Table struct {
	Name    string
	Columns []Column
	Uniques []Unique
}

// Column is one declared column. Type is a SQL storage class
// (INTEGER, REAL or TEXT).
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	ForeignKey *ForeignKey
}

// ForeignKey points a column at another table's identifier.
type ForeignKey struct {
	Table  string
	Column string
}

// Unique is a set of columns whose combined values must be distinct.
type Unique struct {
	Columns []string
}

// New starts an empty schema for version.
func New(version int64) *Schema {
	return &Schema{Version: version}
}

// Table appends a table built by fn and returns s for chaining.
func (s *Schema) Table(name string, fn func(t *TableBuilder)) *Schema {
	t := &Table{Name: name}
	if fn != nil {
		fn(&TableBuilder{t: t})
	}
	s.Tables = append(s.Tables, t)
	return s
}

// Lookup finds a table by name.
func (s *Schema) Lookup(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TableNames returns table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Column finds a column by name. The implicit identifier column is
// reported as a non-null INTEGER.
func (t *Table) Column(name string) (Column, bool) {
	if name == IDColumn {
		return Column{Name: IDColumn, Type: ir.SQLInteger}, true
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnType returns the expression type of a column of t.
func (t *Table) ColumnType(name string) (ir.Type, bool) {
	if name == IDColumn {
		return ir.ID(t.Name), true
	}
	c, ok := t.Column(name)
	if !ok {
		return ir.Type{}, false
	}
	return c.IRType(), true
}

// IRType maps the column's storage class to an expression type. Foreign
// key columns are identifiers of the referenced table.
func (c Column) IRType() ir.Type {
	var typ ir.Type
	switch {
	case c.ForeignKey != nil:
		typ = ir.ID(c.ForeignKey.Table)
	case c.Type == ir.SQLInteger:
		typ = ir.Int
	case c.Type == ir.SQLReal:
		typ = ir.Float
	case c.Type == ir.SQLText:
		typ = ir.Text
	default:
		return ir.Type{}
	}
	if c.Nullable {
		typ = typ.Null()
	}
	return typ
}

func (c Column) String() string {
	s := c.Name + " " + c.Type
	if !c.Nullable {
		s += " NOT NULL"
	}
	if c.ForeignKey != nil {
		s += fmt.Sprintf(" REFERENCES %s(%s)", c.ForeignKey.Table, c.ForeignKey.Column)
	}
	return s
}

// TableBuilder declares the columns of one table.
type TableBuilder struct {
	t *Table
}

func (b *TableBuilder) add(c Column) *TableBuilder {
	b.t.Columns = append(b.t.Columns, c)
	return b
}

// Int declares a non-null INTEGER column.
func (b *TableBuilder) Int(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLInteger})
}

// Float declares a non-null REAL column.
func (b *TableBuilder) Float(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLReal})
}

// Text declares a non-null TEXT column.
func (b *TableBuilder) Text(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLText})
}

// NullInt declares a nullable INTEGER column.
func (b *TableBuilder) NullInt(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLInteger, Nullable: true})
}

// NullFloat declares a nullable REAL column.
func (b *TableBuilder) NullFloat(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLReal, Nullable: true})
}

// NullText declares a nullable TEXT column.
func (b *TableBuilder) NullText(name string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLText, Nullable: true})
}

// Ref declares a non-null column referencing table's identifier.
func (b *TableBuilder) Ref(name, table string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLInteger, ForeignKey: &ForeignKey{Table: table, Column: IDColumn}})
}

// NullRef declares a nullable column referencing table's identifier.
func (b *TableBuilder) NullRef(name, table string) *TableBuilder {
	return b.add(Column{Name: name, Type: ir.SQLInteger, Nullable: true, ForeignKey: &ForeignKey{Table: table, Column: IDColumn}})
}

// Column declares a column with an explicit storage class.
func (b *TableBuilder) Column(c Column) *TableBuilder {
	return b.add(c)
}

// Unique declares that the combination of cols is distinct per row.
func (b *TableBuilder) Unique(cols ...string) *TableBuilder {
	b.t.Uniques = append(b.t.Uniques, Unique{Columns: append([]string(nil), cols...)})
	return b
}
