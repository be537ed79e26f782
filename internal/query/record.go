package query

import "database/sql"

// Mapper registers the projections a query needs and returns the function
// that turns one result row into a T.
type Mapper[T any] func(c *Cacher) func(r *Record) T

// Cacher collects the output columns of a top-level plan in registration
// order.
type Cacher struct {
	plan  *Plan
	dests []func() any
}

// Cached is a handle to one registered projection.
type Cached[T any] struct {
	idx int
}

// Cache projects e and returns a handle for reading it from each Record.
func Cache[T any](c *Cacher, e Expr[T]) Cached[T] {
	if _, ok := c.plan.project(e.c); !ok {
		return Cached[T]{idx: -1}
	}
	c.dests = append(c.dests, func() any { return new(T) })
	return Cached[T]{idx: len(c.dests) - 1}
}

// Record is one decoded result row.
type Record struct {
	dest []any
}

// Get reads a cached projection from r.
func Get[T any](r *Record, h Cached[T]) T {
	if h.idx < 0 || h.idx >= len(r.dest) {
		var zero T
		return zero
	}
	return *r.dest[h.idx].(*T)
}

// scan decodes one row of a statement whose first lead outputs are group
// or sort keys the mapper never registered.
func (c *Cacher) scan(rows *sql.Rows, lead int) (*Record, error) {
	if lead == 0 && len(c.dests) == 0 {
		// A plan with no outputs still selects one NULL column.
		var discard any
		if err := rows.Scan(&discard); err != nil {
			return nil, err
		}
		return &Record{}, nil
	}
	all := make([]any, lead+len(c.dests))
	for i := range lead {
		all[i] = new(any)
	}
	for i, f := range c.dests {
		all[lead+i] = f()
	}
	if err := rows.Scan(all...); err != nil {
		return nil, err
	}
	return &Record{dest: all[lead:]}, nil
}

// One maps each row to the value of e.
func One[T any](e Expr[T]) Mapper[T] {
	return func(c *Cacher) func(*Record) T {
		h := Cache(c, e)
		return func(r *Record) T { return Get(r, h) }
	}
}

// Pair is a two-column result row.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Two maps each row to the values of a and b.
func Two[A, B any](a Expr[A], b Expr[B]) Mapper[Pair[A, B]] {
	return func(c *Cacher) func(*Record) Pair[A, B] {
		ha, hb := Cache(c, a), Cache(c, b)
		return func(r *Record) Pair[A, B] {
			return Pair[A, B]{First: Get(r, ha), Second: Get(r, hb)}
		}
	}
}

// Triple is a three-column result row.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Three maps each row to the values of a, b and c.
func Three[A, B, C any](a Expr[A], b Expr[B], c Expr[C]) Mapper[Triple[A, B, C]] {
	return func(ca *Cacher) func(*Record) Triple[A, B, C] {
		ha, hb, hc := Cache(ca, a), Cache(ca, b), Cache(ca, c)
		return func(r *Record) Triple[A, B, C] {
			return Triple[A, B, C]{First: Get(r, ha), Second: Get(r, hb), Third: Get(r, hc)}
		}
	}
}
