package schema

import (
	"strings"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

// CreateStmt returns the CREATE TABLE statement for t under the name
// table. Migrations pass a temporary name and rename afterwards; unique
// constraint names follow the final table name so the live schema reads
// back identically.
func (t *Table) CreateStmt(table string) *queryir.CreateTable {
	ct := &queryir.CreateTable{Name: table, Strict: true}
	ct.Columns = append(ct.Columns, queryir.ColumnDef{Name: IDColumn, Type: ir.SQLInteger, PrimaryKey: true})
	for _, c := range t.Columns {
		def := queryir.ColumnDef{Name: c.Name, Type: c.Type, NotNull: !c.Nullable}
		if c.ForeignKey != nil {
			def.References = c.ForeignKey.Table
		}
		ct.Columns = append(ct.Columns, def)
	}
	for _, u := range t.Uniques {
		ct.Uniques = append(ct.Uniques, queryir.UniqueDef{
			Name:    t.Name + "_" + strings.Join(u.Columns, "_") + "_unique",
			Columns: append([]string(nil), u.Columns...),
		})
	}
	return ct
}

// CreateStmts returns one CREATE TABLE per table in declaration order.
func (s *Schema) CreateStmts() []*queryir.CreateTable {
	out := make([]*queryir.CreateTable, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.CreateStmt(t.Name)
	}
	return out
}

// DDL renders the CREATE TABLE statements of s for dialect d.
func (s *Schema) DDL(d querysql.Dialect) ([]string, error) {
	c := querysql.NewCompiler(d)
	out := make([]string, 0, len(s.Tables))
	for _, ct := range s.CreateStmts() {
		sql, _, err := c.Compile(ct)
		if err != nil {
			return nil, err
		}
		out = append(out, sql)
	}
	return out, nil
}
