package query

import (
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Writer collects the column values of one row written to a table. Every
// declared column must be set; id is optional.
type Writer struct {
	table *schema.Table
	sc    *scope
	cols  []string
	vals  []queryir.Expr
	set   map[string]bool
	err   error
}

// NewWriter starts a row for table t. Values may read rows of p; a nil p
// allows constants only.
func NewWriter(t *schema.Table, p *Plan) *Writer {
	w := &Writer{table: t, set: make(map[string]bool)}
	if p != nil {
		w.sc = p.sc
	}
	return w
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Set assigns v to column.
func (w *Writer) Set(column string, v Any) *Writer {
	c := v.exprCore()
	switch {
	case c.err != nil:
		w.fail(c.err)
		return w
	case c.node == nil:
		w.fail(newError(ErrCodeUnsupported, "use of zero expression"))
		return w
	case c.sc != nil && (w.sc == nil || !w.sc.within(c.sc)):
		w.fail(newError(ErrCodeScopeMismatch, "value for %s.%s belongs to an unrelated plan", w.table.Name, column))
		return w
	}
	return w.assign(column, c.node, c.typ)
}

// SetNull stores NULL in a nullable column.
func (w *Writer) SetNull(column string) *Writer {
	col, ok := w.table.ColumnType(column)
	if !ok {
		return w.assign(column, nil, ir.Type{})
	}
	return w.assign(column, queryir.Literal{Value: nil}, col.Null())
}

func (w *Writer) assign(column string, node queryir.Expr, typ ir.Type) *Writer {
	col, ok := w.table.ColumnType(column)
	if !ok {
		w.fail(newError(ErrCodeUnknownColumn, "table %q has no column %q", w.table.Name, column).
			with("table", w.table.Name).
			with("column", column))
		return w
	}
	if w.set[column] {
		w.fail(newError(ErrCodeUnsupported, "column %s.%s set twice", w.table.Name, column))
		return w
	}
	if !ir.Assignable(col, typ) {
		w.fail(newError(ErrCodeTypeMismatch, "cannot store %s in %s.%s (%s)", typ, w.table.Name, column, col).
			with("table", w.table.Name).
			with("column", column))
		return w
	}
	w.set[column] = true
	w.cols = append(w.cols, column)
	w.vals = append(w.vals, node)
	return w
}

// Err returns the first error the writer saw, or the first declared
// column left unset.
func (w *Writer) Err() error {
	if w.err != nil {
		return w.err
	}
	for _, c := range w.table.Columns {
		if !w.set[c.Name] {
			return newError(ErrCodeMissingColumn, "column %s.%s is not set", w.table.Name, c.Name).
				with("table", w.table.Name).
				with("column", c.Name)
		}
	}
	return nil
}

// Columns returns the assigned column names in assignment order.
func (w *Writer) Columns() []string {
	return append([]string(nil), w.cols...)
}

// InsertSelect turns a plan and a writer whose values read the plan's rows
// into INSERT INTO table (...) SELECT .... The plan is consumed.
func InsertSelect(table string, p *Plan, w *Writer, onConflictDoNothing bool) (*queryir.Insert, error) {
	if err := w.Err(); err != nil {
		return nil, err
	}
	if w.sc != p.sc {
		return nil, newError(ErrCodeScopeMismatch, "writer was not built for this plan")
	}
	for _, v := range w.vals {
		if _, ok := p.project(core{node: v, sc: p.sc}); !ok {
			return nil, p.err
		}
	}
	sel, err := p.Build()
	if err != nil {
		return nil, err
	}
	return &queryir.Insert{
		Table:               table,
		Columns:             w.Columns(),
		Query:               sel,
		OnConflictDoNothing: onConflictDoNothing,
	}, nil
}
