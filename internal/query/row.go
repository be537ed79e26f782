package query

import (
	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Row reads the columns of one table source. Rows reached through Ref are
// joined lazily: the join is added the first time a column other than id
// is read, and every Row reached through the same field shares it.
type Row struct {
	plan  *Plan
	table *schema.Table
	// alias is zero until a lazily joined row is resolved.
	alias alias.Alias
	root  alias.Alias

	parent *Row
	fk     string
	err    error
}

// Plan returns the plan the row belongs to.
func (r *Row) Plan() *Plan { return r.plan }

// Table returns the name of the table the row reads.
func (r *Row) Table() string {
	if r.table == nil {
		return ""
	}
	return r.table.Name
}

// resolve returns the row's source alias, joining it on first use.
func (r *Row) resolve() (alias.Alias, error) {
	if r.err != nil {
		return 0, r.err
	}
	if !r.alias.IsZero() {
		return r.alias, nil
	}
	parent, err := r.parent.resolve()
	if err != nil {
		return 0, err
	}
	p := r.plan
	if !p.usable() {
		return 0, p.err
	}
	key := joinKey{source: parent, column: r.fk}
	if a, ok := p.joinIdx[key]; ok {
		r.alias = a
		return a, nil
	}
	a := p.aliases.Next()
	p.joins = append(p.joins, &joinEntry{
		root: r.root,
		table: &queryir.Table{
			Name:  r.table.Name,
			Alias: a,
			On: queryir.Binary{
				Op:    queryir.OpEq,
				Left:  queryir.Column{Source: a, Field: queryir.Named(schema.IDColumn)},
				Right: queryir.Column{Source: parent, Field: queryir.Named(r.fk)},
			},
		},
	})
	p.joinIdx[key] = a
	r.alias = a
	return a, nil
}

// Col reads column name of r as T. Reading a column under the wrong Go
// type, or a column the table lacks, yields a failed expression and
// records the error on the plan.
func Col[T any](r *Row, name string) Expr[T] {
	if r.err != nil {
		return failed[T](r.err)
	}
	typ, ok := r.table.ColumnType(name)
	if !ok {
		err := newError(ErrCodeUnknownColumn, "table %q has no column %q", r.table.Name, name).
			with("table", r.table.Name).
			with("column", name)
		r.plan.fail(err)
		return failed[T](err)
	}
	if !accepts[T](typ) {
		var zero T
		err := newError(ErrCodeTypeMismatch, "column %s.%s is %s, cannot read as %T", r.table.Name, name, typ, zero).
			with("table", r.table.Name).
			with("column", name)
		r.plan.fail(err)
		return failed[T](err)
	}
	if want, ok := typeOf[T](); ok && want.Kind == ir.KindBool {
		typ = ir.Type{Kind: ir.KindBool, Nullable: typ.Nullable}
	}

	// The identifier of a joined row is the foreign key that reaches it.
	if name == schema.IDColumn && r.parent != nil {
		fk := Col[T](r.parent, r.fk)
		fk.c.typ = typ
		return fk
	}

	a, err := r.resolve()
	if err != nil {
		return failed[T](err)
	}
	return Expr[T]{c: core{
		node: queryir.Column{Source: a, Field: queryir.Named(name)},
		typ:  typ,
		sc:   r.plan.sc,
	}}
}

// ID reads the row identifier.
func (r *Row) ID() Expr[ID] { return Col[ID](r, schema.IDColumn) }

// Text reads a non-null TEXT column.
func (r *Row) Text(name string) Expr[string] { return Col[string](r, name) }

// Int reads a non-null INTEGER column.
func (r *Row) Int(name string) Expr[int64] { return Col[int64](r, name) }

// Float reads a non-null REAL column.
func (r *Row) Float(name string) Expr[float64] { return Col[float64](r, name) }

// Bool reads a non-null INTEGER column as a boolean.
func (r *Row) Bool(name string) Expr[bool] { return Col[bool](r, name) }

// Column reads any column untyped, for copying values between tables.
func (r *Row) Column(name string) Expr[any] { return Col[any](r, name) }

// Ref follows the non-null foreign key column name to the row it points
// at. No join is added until a column of the returned row is read.
func (r *Row) Ref(name string) *Row {
	if r.err != nil {
		return &Row{plan: r.plan, err: r.err}
	}
	col, ok := r.table.Column(name)
	if !ok {
		err := newError(ErrCodeUnknownColumn, "table %q has no column %q", r.table.Name, name).
			with("table", r.table.Name).
			with("column", name)
		r.plan.fail(err)
		return &Row{plan: r.plan, err: err}
	}
	if col.ForeignKey == nil || col.Nullable {
		err := newError(ErrCodeTypeMismatch, "column %s.%s is not a non-null foreign key", r.table.Name, name).
			with("table", r.table.Name).
			with("column", name)
		r.plan.fail(err)
		return &Row{plan: r.plan, err: err}
	}
	target, ok := r.plan.schema.Lookup(col.ForeignKey.Table)
	if !ok {
		err := newError(ErrCodeUnknownTable, "unknown table %q", col.ForeignKey.Table).
			with("table", col.ForeignKey.Table)
		r.plan.fail(err)
		return &Row{plan: r.plan, err: err}
	}
	return &Row{plan: r.plan, table: target, root: r.root, parent: r, fk: name}
}
