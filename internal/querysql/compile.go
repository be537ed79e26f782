package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/queryir"
)

// Compiler renders queryir statements as parameterized SQL.
//
// CRITICAL: literal values are always bound as parameters, never written
// into the SQL text.
type Compiler struct {
	Dialect Dialect
}

// NewCompiler creates a Compiler for d. A nil d means SQLite.
func NewCompiler(d Dialect) *Compiler {
	if d == nil {
		d = SQLite
	}
	return &Compiler{Dialect: d}
}

// UnsupportedError reports a statement shape a dialect cannot express.
type UnsupportedError struct {
	Dialect string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported: %s", e.Dialect, e.Feature)
}

// Compile validates stmt and renders it. Returns (sql, params, error).
func (c *Compiler) Compile(stmt queryir.Stmt) (string, []any, error) {
	if stmt == nil {
		return "", nil, fmt.Errorf("cannot compile nil statement")
	}
	if err := queryir.Validate(stmt); err != nil {
		return "", nil, err
	}

	d := c.Dialect
	if d == nil {
		d = SQLite
	}
	w := &writer{d: d, nested: make(map[alias.Alias]*queryir.Nested)}
	w.collectNested(stmt)
	w.stmt(stmt)
	if w.err != nil {
		return "", nil, w.err
	}
	return w.buf.String(), w.params, nil
}

// MustCompile is like Compile but panics on error. Use only in tests.
func (c *Compiler) MustCompile(stmt queryir.Stmt) (string, []any) {
	sql, params, err := c.Compile(stmt)
	if err != nil {
		panic(err)
	}
	return sql, params
}

type writer struct {
	d      Dialect
	buf    strings.Builder
	params []any
	nested map[alias.Alias]*queryir.Nested
	err    error
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.buf.WriteString(p)
	}
}

func (w *writer) fail(feature string) {
	if w.err == nil {
		w.err = &UnsupportedError{Dialect: w.d.Name(), Feature: feature}
	}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// collectNested indexes every nested source so column references to its
// outputs can be inlined when the dialect has no lateral joins.
func (w *writer) collectNested(stmt queryir.Stmt) {
	var walk func(sel *queryir.Select)
	walk = func(sel *queryir.Select) {
		for _, src := range sel.Sources {
			if n, ok := src.(*queryir.Nested); ok {
				w.nested[n.Alias] = n
				walk(n.Select)
			}
		}
	}
	switch s := stmt.(type) {
	case *queryir.Select:
		walk(s)
	case *queryir.Insert:
		if s.Query != nil {
			walk(s.Query)
		}
	}
	if w.d.Lateral() {
		return
	}
	for _, n := range w.nested {
		sel := n.Select
		switch {
		case len(sel.Group) > 0:
			if !correlatedGroup(sel) {
				w.fail("nested select grouped on its own rows needs lateral joins")
			}
		case len(sel.Sort) > 0 || len(sel.Columns) > 0:
			w.fail("nested select with sorting or plain columns needs lateral joins")
		}
	}
}

// correlatedGroup reports whether every group key of sel reads only
// enclosing sources. Such a select yields at most one row per outer row.
func correlatedGroup(sel *queryir.Select) bool {
	own := make(map[alias.Alias]bool, len(sel.Sources))
	for _, src := range sel.Sources {
		switch s := src.(type) {
		case *queryir.Table:
			own[s.Alias] = true
		case *queryir.Nested:
			own[s.Alias] = true
		}
	}
	for _, g := range sel.Group {
		if reads(g.Expr, own) {
			return false
		}
	}
	return true
}

func reads(e queryir.Expr, aliases map[alias.Alias]bool) bool {
	switch x := e.(type) {
	case queryir.Column:
		return aliases[x.Source]
	case queryir.Binary:
		return reads(x.Left, aliases) || reads(x.Right, aliases)
	case queryir.Not:
		return reads(x.Expr, aliases)
	case queryir.IsNotNull:
		return reads(x.Expr, aliases)
	case queryir.IfNull:
		return reads(x.Expr, aliases) || reads(x.Default, aliases)
	case queryir.CastFloat:
		return reads(x.Expr, aliases)
	case queryir.Aggregate:
		return x.Arg != nil && reads(x.Arg, aliases)
	}
	return false
}

func (w *writer) stmt(stmt queryir.Stmt) {
	switch s := stmt.(type) {
	case *queryir.Select:
		w.selectStmt(s, false)
	case *queryir.Insert:
		w.insert(s)
	case *queryir.CreateTable:
		w.createTable(s)
	case *queryir.DropTable:
		w.write("DROP TABLE ", quote(s.Name))
	case *queryir.RenameTable:
		w.write("ALTER TABLE ", quote(s.From), " RENAME TO ", quote(s.To))
	default:
		w.err = fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

func (w *writer) insert(ins *queryir.Insert) {
	w.write("INSERT INTO ", quote(ins.Table))
	if len(ins.Columns) == 0 && ins.Query == nil {
		w.write(" DEFAULT VALUES")
		return
	}
	cols := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = quote(c)
	}
	w.write(" (", strings.Join(cols, ", "), ") ")
	switch {
	case ins.Query != nil && ins.Query.Leading() > 0:
		// Group and sort keys are projected too; only Columns are written.
		w.write("SELECT ", aliasList(ins.Query.Columns), " FROM (")
		w.selectStmt(ins.Query, false)
		w.write(`) AS "_rows"`)
		if ins.OnConflictDoNothing {
			w.write(" WHERE TRUE")
		}
	case ins.Query != nil:
		// SQLite needs a WHERE between SELECT ... FROM and ON CONFLICT.
		w.selectStmt(ins.Query, ins.OnConflictDoNothing)
	default:
		w.write("VALUES (")
		for i, v := range ins.Values {
			if i > 0 {
				w.write(", ")
			}
			w.expr(v)
		}
		w.write(")")
	}
	if ins.OnConflictDoNothing {
		w.write(" ON CONFLICT DO NOTHING")
	}
}

func (w *writer) createTable(ct *queryir.CreateTable) {
	w.write("CREATE TABLE ", quote(ct.Name), " (")
	for i, col := range ct.Columns {
		if i > 0 {
			w.write(", ")
		}
		w.write(quote(col.Name), " ")
		if col.PrimaryKey {
			w.write(w.d.PrimaryKey())
			continue
		}
		w.write(w.d.ColumnType(col.Type))
		if col.NotNull {
			w.write(" NOT NULL")
		}
		if col.References != "" {
			w.write(" REFERENCES ", quote(col.References), ` ("id")`)
		}
	}
	for _, u := range ct.Uniques {
		cols := make([]string, len(u.Columns))
		for i, c := range u.Columns {
			cols[i] = quote(c)
		}
		w.write(", CONSTRAINT ", quote(u.Name), " UNIQUE (", strings.Join(cols, ", "), ")")
	}
	w.write(")", w.d.TableSuffix(ct.Strict))
}

func (w *writer) selectStmt(sel *queryir.Select, needWhere bool) {
	grouped := len(sel.Group) > 0
	distinctOn := grouped && len(sel.Aggregates) == 0 && w.d.DistinctOn()
	if grouped && !distinctOn && w.d.DistinctOn() && len(sel.Columns) > 0 {
		w.fail("plain columns next to grouped aggregates")
	}

	w.write("SELECT ")
	if distinctOn {
		w.write("DISTINCT ON (", aliasList(sel.Group), ") ")
	}

	n := 0
	project := func(p queryir.Projection, wrapMin bool) {
		if n > 0 {
			w.write(", ")
		}
		n++
		if wrapMin {
			w.write("MIN(")
			w.expr(p.Expr)
			w.write(")")
		} else {
			w.expr(p.Expr)
		}
		w.write(" AS ", quote(p.Alias.String()))
	}
	for _, p := range sel.Group {
		project(p, false)
	}
	for _, p := range sel.Aggregates {
		project(p, false)
	}
	for i, p := range sel.Sort {
		// Bare columns come from the row holding the single MIN, so only
		// the first sort key decides which row a group keeps.
		project(p, grouped && !distinctOn && i == 0)
	}
	for _, p := range sel.Columns {
		project(p, false)
	}
	if n == 0 {
		w.write("NULL")
	}

	w.sources(sel.Sources)
	w.where(sel.Where, sel.Sources, needWhere)

	if grouped && !distinctOn {
		w.write(" GROUP BY ", aliasList(sel.Group))
	}
	if keys := append(append([]queryir.Projection{}, sel.Group...), sel.Sort...); len(keys) > 0 {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quote(k.Alias.String()) + " ASC"
		}
		w.write(" ORDER BY ", strings.Join(parts, ", "))
	}
}

func aliasList(ps []queryir.Projection) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = quote(p.Alias.String())
	}
	return strings.Join(parts, ", ")
}

func (w *writer) sources(srcs []queryir.Source) {
	first := true
	for _, src := range srcs {
		switch s := src.(type) {
		case *queryir.Table:
			if first {
				if s.On != nil {
					w.fail("join condition on the first source")
				}
				w.write(" FROM ", quote(s.Name), " AS ", quote(s.Alias.String()))
				first = false
				continue
			}
			w.write(" INNER JOIN ", quote(s.Name), " AS ", quote(s.Alias.String()), " ON ")
			if s.On == nil {
				w.write("TRUE")
			} else {
				w.expr(s.On)
			}
		case *queryir.Nested:
			if !w.d.Lateral() {
				// Inlined at each reference instead.
				continue
			}
			if first {
				w.write(" FROM (")
			} else {
				w.write(" INNER JOIN LATERAL (")
			}
			w.selectStmt(s.Select, false)
			w.write(") AS ", quote(s.Alias.String()))
			if !first {
				w.write(" ON TRUE")
			}
			first = false
		}
	}
}

// where ANDs conds into a WHERE clause. Without lateral joins a grouped
// nested source drops the outer rows it has no group for, so each one adds
// an EXISTS over its rows.
func (w *writer) where(conds []queryir.Expr, srcs []queryir.Source, needWhere bool) {
	var exists []*queryir.Nested
	if !w.d.Lateral() {
		for _, src := range srcs {
			if n, ok := src.(*queryir.Nested); ok && len(n.Select.Group) > 0 {
				exists = append(exists, n)
			}
		}
	}
	if len(conds) == 0 && len(exists) == 0 {
		if needWhere {
			w.write(" WHERE TRUE")
		}
		return
	}
	w.write(" WHERE ")
	n := 0
	and := func() {
		if n > 0 {
			w.write(" AND ")
		}
		n++
	}
	for _, c := range conds {
		and()
		w.expr(c)
	}
	for _, nested := range exists {
		and()
		w.write("EXISTS (SELECT 1")
		w.sources(nested.Select.Sources)
		w.where(nested.Select.Where, nested.Select.Sources, false)
		w.write(")")
	}
}

func (w *writer) expr(e queryir.Expr) {
	switch x := e.(type) {
	case queryir.Column:
		if n, ok := w.nested[x.Source]; ok && !w.d.Lateral() {
			w.scalarSubquery(n, x.Field.Alias)
			return
		}
		w.write(quote(x.Source.String()), ".", quote(x.Field.String()))
	case queryir.Literal:
		w.params = append(w.params, x.Value)
		w.write(w.d.Placeholder(len(w.params)))
	case queryir.Binary:
		w.write("(")
		w.expr(x.Left)
		w.write(" ", string(x.Op), " ")
		w.expr(x.Right)
		w.write(")")
	case queryir.Not:
		w.write("(NOT ")
		w.expr(x.Expr)
		w.write(")")
	case queryir.IsNotNull:
		w.write("(")
		w.expr(x.Expr)
		w.write(" IS NOT NULL)")
	case queryir.IfNull:
		w.write(w.d.IfNull(), "(")
		w.expr(x.Expr)
		w.write(", ")
		w.expr(x.Default)
		w.write(")")
	case queryir.CastFloat:
		w.write("CAST(")
		w.expr(x.Expr)
		w.write(" AS ", w.d.FloatType(), ")")
	case queryir.Aggregate:
		w.write(string(x.Func), "(")
		if x.Distinct {
			w.write("DISTINCT ")
		}
		if x.Arg == nil {
			w.write("*")
		} else {
			w.expr(x.Arg)
		}
		w.write(")")
	default:
		w.err = fmt.Errorf("unsupported expression type: %T", e)
	}
}

// scalarSubquery renders one output of a nested select in place. The
// nested select either only aggregates or groups on enclosing rows, so it
// yields at most one row, matching the lateral join it stands in for.
// Other outputs come from the row with the smallest sort keys.
func (w *writer) scalarSubquery(n *queryir.Nested, field alias.Alias) {
	sel := n.Select
	for _, g := range sel.Group {
		if g.Alias == field {
			// Reads only enclosing sources.
			w.expr(g.Expr)
			return
		}
	}
	proj, _ := sel.Output(field)
	w.write("(SELECT ")
	w.expr(proj.Expr)
	w.sources(sel.Sources)
	w.where(sel.Where, sel.Sources, false)
	if !aggregated(sel, field) {
		if len(sel.Sort) > 0 {
			w.write(" ORDER BY ")
			for i, k := range sel.Sort {
				if i > 0 {
					w.write(", ")
				}
				w.expr(k.Expr)
				w.write(" ASC")
			}
		}
		w.write(" LIMIT 1")
	}
	w.write(")")
}

func aggregated(sel *queryir.Select, field alias.Alias) bool {
	for _, a := range sel.Aggregates {
		if a.Alias == field {
			return true
		}
	}
	return false
}
