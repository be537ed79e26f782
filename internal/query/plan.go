package query

import (
	"database/sql"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Plan accumulates the sources, filters, grouping and projections of one
// SELECT. A Plan is built once: the first Build consumes it.
//
// Plans are not safe for concurrent use.
type Plan struct {
	schema  *schema.Schema
	aliases *alias.Scope
	sc      *scope
	parent  *Plan
	// self is the alias of the Nested source holding this plan.
	self alias.Alias

	entries []*entry
	joins   []*joinEntry
	joinIdx map[joinKey]alias.Alias

	where      []queryir.Expr
	group      []queryir.Projection
	aggregates []queryir.Projection
	sort       []queryir.Projection
	columns    []queryir.Projection

	consumed bool
	err      error
}

type entry struct {
	source queryir.Source
	nested *Plan
}

// joinKey is a field reference: a source alias and a foreign key column.
type joinKey struct {
	source alias.Alias
	column string
}

type joinEntry struct {
	root  alias.Alias
	table *queryir.Table
}

// Option configures a Plan.
type Option func(*Plan)

// WithAliases draws aliases from a shared scope. Migrations use this so
// temporary table names never collide with plan aliases.
func WithAliases(s *alias.Scope) Option {
	return func(p *Plan) {
		p.aliases = s
	}
}

// NewPlan creates an empty top-level plan over s.
func NewPlan(s *schema.Schema, opts ...Option) *Plan {
	p := &Plan{
		schema:  s,
		sc:      &scope{},
		joinIdx: make(map[joinKey]alias.Alias),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.aliases == nil {
		p.aliases = alias.NewScope()
	}
	return p
}

// Err returns the first construction error the plan recorded.
func (p *Plan) Err() error { return p.err }

func (p *Plan) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// usable reports whether the plan may still be modified.
func (p *Plan) usable() bool {
	for q := p; q != nil; q = q.parent {
		if q.consumed {
			p.fail(newError(ErrCodePlanConsumed, "plan was already built"))
			return false
		}
	}
	return true
}

// admit checks that c may be used inside p: it carries no error and was
// built under p or a plan enclosing p.
func (p *Plan) admit(c core) bool {
	if !p.usable() {
		return false
	}
	if c.err != nil {
		p.fail(c.err)
		return false
	}
	if c.node == nil {
		p.fail(newError(ErrCodeUnsupported, "use of zero expression"))
		return false
	}
	if c.sc != nil && !p.sc.within(c.sc) {
		p.fail(newError(ErrCodeScopeMismatch, "expression belongs to a plan unrelated to this one"))
		return false
	}
	return true
}

// From adds a table source and returns its row accessor.
func (p *Plan) From(table string) *Row {
	if !p.usable() {
		return &Row{plan: p, err: p.err}
	}
	t, ok := p.schema.Lookup(table)
	if !ok {
		err := newError(ErrCodeUnknownTable, "unknown table %q", table).with("table", table)
		p.fail(err)
		return &Row{plan: p, err: err}
	}
	a := p.aliases.Next()
	p.entries = append(p.entries, &entry{source: &queryir.Table{Name: table, Alias: a}})
	return &Row{plan: p, table: t, alias: a, root: a}
}

// Filter keeps only rows where cond holds. Filters are ANDed.
func (p *Plan) Filter(cond Expr[bool]) {
	if !p.admit(cond.c) {
		return
	}
	if cond.c.agg {
		p.fail(newError(ErrCodeUnsupported, "aggregate used as a filter"))
		return
	}
	p.where = append(p.where, cond.c.node)
}

// FilterSome keeps only rows where e is not null and returns e unwrapped.
func FilterSome[T any](p *Plan, e Expr[sql.Null[T]]) Expr[T] {
	p.Filter(IsNotNull(e))
	if e.c.err != nil {
		return failed[T](e.c.err)
	}
	c := e.c
	c.typ = c.typ.NotNull()
	return Expr[T]{c: c}
}

// GroupBy groups on e. Group keys are ordered ascending; within a group
// the kept row is the one with the smallest first sort key.
func GroupBy[T any](p *Plan, e Expr[T]) Expr[T] {
	if !p.admit(e.c) {
		return failed[T](p.err)
	}
	a := p.aliases.Next()
	p.group = append(p.group, queryir.Projection{Alias: a, Expr: e.c.node})
	return export[T](p, a, e.c)
}

// SortBy orders results ascending by e after any group keys.
func SortBy[T any](p *Plan, e Expr[T]) {
	if !p.admit(e.c) {
		return
	}
	a := p.aliases.Next()
	p.sort = append(p.sort, queryir.Projection{Alias: a, Expr: e.c.node})
}

// Pick exposes e to the plan enclosing q, read from the row q keeps: with
// group keys that is the row with the smallest first sort key of each
// group. Grouping q on an enclosing row picks one matching row per outer
// row; outer rows with no match are dropped.
func Pick[T any](q *Plan, e Expr[T]) Expr[T] {
	if q.parent == nil {
		q.fail(newError(ErrCodeUnsupported, "pick used outside a nested plan"))
		return failed[T](q.err)
	}
	if !q.admit(e.c) {
		return failed[T](q.err)
	}
	if e.c.agg {
		q.fail(newError(ErrCodeUnsupported, "aggregate passed to pick"))
		return failed[T](q.err)
	}
	a := q.aliases.Next()
	q.columns = append(q.columns, queryir.Projection{Alias: a, Expr: e.c.node})
	return export[T](q, a, e.c)
}

// export makes an output of p readable where p's result is consumed. Top
// level plans read the expression directly; nested plans expose it as a
// column of their source alias.
func export[T any](p *Plan, a alias.Alias, c core) Expr[T] {
	if p.parent == nil {
		return Expr[T]{c: c}
	}
	return Expr[T]{c: core{
		node: queryir.Column{Source: p.self, Field: queryir.Generated(a)},
		typ:  c.typ,
		sc:   p.parent.sc,
	}}
}

// Sub adds a correlated nested plan built by fn and returns what fn
// returns. Expressions built inside fn may read every row of p created
// before the call; aggregates of the nested plan come back readable in p.
func Sub[R any](p *Plan, fn func(q *Plan) R) R {
	q := &Plan{
		schema:  p.schema,
		aliases: p.aliases,
		sc:      &scope{parent: p.sc},
		parent:  p,
		joinIdx: make(map[joinKey]alias.Alias),
	}
	if p.usable() {
		q.self = p.aliases.Next()
		p.entries = append(p.entries, &entry{source: &queryir.Nested{Alias: q.self}, nested: q})
	}
	r := fn(q)
	if q.err != nil {
		p.fail(q.err)
	}
	return r
}

// aggregate registers an aggregate over p's rows.
func aggregate[T any](p *Plan, node queryir.Expr, typ ir.Type, args ...core) Expr[T] {
	for _, c := range args {
		if !p.admit(c) {
			return failed[T](p.err)
		}
	}
	if !p.usable() {
		return failed[T](p.err)
	}
	c := core{node: node, typ: typ, sc: p.sc, agg: true}
	if p.parent == nil {
		return Expr[T]{c: c}
	}
	a := p.aliases.Next()
	p.aggregates = append(p.aggregates, queryir.Projection{Alias: a, Expr: node})
	return export[T](p, a, c)
}

// Count counts p's rows.
func Count(p *Plan) Expr[int64] {
	return aggregate[int64](p, queryir.Aggregate{Func: queryir.AggCount}, ir.Int)
}

// CountDistinct counts the distinct non-null values of e.
func CountDistinct[T any](p *Plan, e Expr[T]) Expr[int64] {
	return aggregate[int64](p, queryir.Aggregate{Func: queryir.AggCount, Arg: e.c.node, Distinct: true}, ir.Int, e.c)
}

// Sum adds e over p's rows; 0 when there are none.
func Sum(p *Plan, e Expr[int64]) Expr[int64] {
	node := queryir.IfNull{
		Expr:    queryir.Aggregate{Func: queryir.AggSum, Arg: e.c.node},
		Default: queryir.Literal{Value: int64(0)},
	}
	return aggregate[int64](p, node, ir.Int, e.c)
}

// SumFloat adds e over p's rows; 0 when there are none.
func SumFloat(p *Plan, e Expr[float64]) Expr[float64] {
	node := queryir.IfNull{
		Expr:    queryir.Aggregate{Func: queryir.AggSum, Arg: e.c.node},
		Default: queryir.Literal{Value: float64(0)},
	}
	return aggregate[float64](p, node, ir.Float, e.c)
}

// Avg averages e over p's rows; null when there are none.
func Avg(p *Plan, e Expr[float64]) Expr[sql.Null[float64]] {
	return aggregate[sql.Null[float64]](p, queryir.Aggregate{Func: queryir.AggAvg, Arg: e.c.node}, ir.Float.Null(), e.c)
}

// Min returns the smallest e over p's rows; null when there are none.
func Min[T ordered](p *Plan, e Expr[T]) Expr[sql.Null[T]] {
	return aggregate[sql.Null[T]](p, queryir.Aggregate{Func: queryir.AggMin, Arg: e.c.node}, e.c.typ.Null(), e.c)
}

// Max returns the largest e over p's rows; null when there are none.
func Max[T ordered](p *Plan, e Expr[T]) Expr[sql.Null[T]] {
	return aggregate[sql.Null[T]](p, queryir.Aggregate{Func: queryir.AggMax, Arg: e.c.node}, e.c.typ.Null(), e.c)
}

// project adds an output column to a top-level plan.
func (p *Plan) project(c core) (alias.Alias, bool) {
	if !p.admit(c) {
		return 0, false
	}
	a := p.aliases.Next()
	p.columns = append(p.columns, queryir.Projection{Alias: a, Expr: c.node})
	return a, true
}

// Build lowers the plan to a queryir.Select and consumes it. Building a
// plan twice, or building a nested plan directly, is an error.
func (p *Plan) Build() (*queryir.Select, error) {
	if p.parent != nil {
		return nil, newError(ErrCodeUnsupported, "nested plans are built by their enclosing plan")
	}
	if p.consumed {
		return nil, newError(ErrCodePlanConsumed, "plan was already built")
	}
	p.consumed = true
	return p.lower()
}

func (p *Plan) lower() (*queryir.Select, error) {
	if p.err != nil {
		return nil, p.err
	}
	sel := &queryir.Select{
		Where:      p.where,
		Group:      p.group,
		Aggregates: p.aggregates,
		Sort:       p.sort,
		Columns:    p.columns,
	}
	for _, e := range p.entries {
		switch src := e.source.(type) {
		case *queryir.Table:
			sel.Sources = append(sel.Sources, src)
			// Foreign key joins follow their root so ON clauses only see
			// aliases already in scope.
			for _, j := range p.joins {
				if j.root == src.Alias {
					sel.Sources = append(sel.Sources, j.table)
				}
			}
		case *queryir.Nested:
			e.nested.consumed = true
			inner, err := e.nested.lower()
			if err != nil {
				return nil, err
			}
			src.Select = inner
			sel.Sources = append(sel.Sources, src)
		}
	}
	return sel, nil
}
