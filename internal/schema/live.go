package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Querier is the read side of *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const (
	listTablesSQL  = `SELECT "name" FROM "sqlite_schema" WHERE "type" = 'table' AND "name" NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY "name"`
	tableInfoSQL   = `SELECT "name", "type", "notnull", "pk" FROM pragma_table_info(?) ORDER BY "cid"`
	foreignKeySQL  = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY "id", "seq"`
	uniqueListSQL  = `SELECT "name" FROM pragma_index_list(?) WHERE "origin" = 'u' ORDER BY "name"`
	indexInfoSQL   = `SELECT "name" FROM pragma_index_info(?) ORDER BY "seqno"`
	userVersionSQL = `PRAGMA user_version`
)

// ReadLive reconstructs the schema of a SQLite database from its catalog.
// The integer primary key "id" is folded back into the implicit column;
// any other primary key shows up as an ordinary column so Diff reports it.
// Version is the database's user_version.
func ReadLive(ctx context.Context, q Querier) (*Schema, error) {
	version, err := ReadVersion(ctx, q)
	if err != nil {
		return nil, err
	}

	names, err := queryStrings(ctx, q, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	s := New(version)
	for _, name := range names {
		t, err := readTable(ctx, q, name)
		if err != nil {
			return nil, fmt.Errorf("read table %q: %w", name, err)
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

// ReadVersion returns the database's user_version.
func ReadVersion(ctx context.Context, q Querier) (int64, error) {
	rows, err := q.QueryContext(ctx, userVersionSQL)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	defer rows.Close()

	var v int64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("scan user_version: %w", err)
		}
	}
	return v, rows.Err()
}

func readTable(ctx context.Context, q Querier, name string) (*Table, error) {
	t := &Table{Name: name}

	// Rows are drained before the next query; q may be a single connection.
	rows, err := q.QueryContext(ctx, tableInfoSQL, name)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			c       Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			rows.Close()
			return nil, err
		}
		c.Type = strings.ToUpper(c.Type)
		c.Nullable = notNull == 0
		if c.Name == IDColumn && pk == 1 && c.Type == ir.SQLInteger {
			continue
		}
		t.Columns = append(t.Columns, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, foreignKeySQL, name)
	if err != nil {
		return nil, err
	}
	fks := make(map[string]*ForeignKey)
	for rows.Next() {
		var (
			from, table string
			to          sql.NullString
		)
		if err := rows.Scan(&from, &table, &to); err != nil {
			rows.Close()
			return nil, err
		}
		fk := &ForeignKey{Table: table, Column: IDColumn}
		if to.Valid && to.String != "" {
			fk.Column = to.String
		}
		fks[from] = fk
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	for i := range t.Columns {
		t.Columns[i].ForeignKey = fks[t.Columns[i].Name]
	}

	indexes, err := queryStrings(ctx, q, uniqueListSQL, name)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		cols, err := queryStrings(ctx, q, indexInfoSQL, idx)
		if err != nil {
			return nil, err
		}
		t.Uniques = append(t.Uniques, Unique{Columns: cols})
	}
	return t, nil
}

func queryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	return out, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
