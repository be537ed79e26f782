package query

import (
	"database/sql"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

type number interface {
	int64 | float64
}

type ordered interface {
	int64 | float64 | string
}

// Const wraps a Go value as a bound parameter.
func Const[T any](v T) Expr[T] {
	typ, ok := typeOf[T]()
	if !ok {
		return failed[T](newError(ErrCodeUnsupported, "constant of type %T", v))
	}
	return Expr[T]{c: core{node: queryir.Literal{Value: literal(v)}, typ: typ}}
}

// Null is the null constant of an optional type.
func Null[T any]() Expr[sql.Null[T]] {
	return Const(sql.Null[T]{})
}

// Add is a + b.
func Add[T number](a, b Expr[T]) Expr[T] {
	return combine[T](queryir.Binary{Op: queryir.OpAdd, Left: a.c.node, Right: b.c.node}, a.c.typ, a.c, b.c)
}

// Lt is a < v.
func Lt[T ordered](a Expr[T], v T) Expr[bool] {
	right := queryir.Literal{Value: v}
	return combine[bool](queryir.Binary{Op: queryir.OpLt, Left: a.c.node, Right: right}, ir.Bool, a.c)
}

// Eq is a = b. Identifiers only compare equal to identifiers of the same
// table.
func Eq[T any](a, b Expr[T]) Expr[bool] {
	e := combine[bool](queryir.Binary{Op: queryir.OpEq, Left: a.c.node, Right: b.c.node}, ir.Bool, a.c, b.c)
	if e.c.err != nil {
		return e
	}
	if !ir.Same(a.c.typ, b.c.typ) {
		return failed[bool](newError(ErrCodeTypeMismatch, "cannot compare %s with %s", a.c.typ, b.c.typ).
			with("left", a.c.typ.String()).
			with("right", b.c.typ.String()))
	}
	return e
}

// Not negates a.
func Not(a Expr[bool]) Expr[bool] {
	return combine[bool](queryir.Not{Expr: a.c.node}, ir.Bool, a.c)
}

// And is a AND b.
func And(a, b Expr[bool]) Expr[bool] {
	return combine[bool](queryir.Binary{Op: queryir.OpAnd, Left: a.c.node, Right: b.c.node}, ir.Bool, a.c, b.c)
}

// UnwrapOr replaces null values of a with d.
func UnwrapOr[T any](a Expr[sql.Null[T]], d Expr[T]) Expr[T] {
	e := combine[T](queryir.IfNull{Expr: a.c.node, Default: d.c.node}, a.c.typ.NotNull(), a.c, d.c)
	if e.c.err != nil {
		return e
	}
	if !ir.Same(a.c.typ.NotNull(), d.c.typ) {
		return failed[T](newError(ErrCodeTypeMismatch, "default %s does not match %s", d.c.typ, a.c.typ))
	}
	return e
}

// IsNotNull holds when a has a value.
func IsNotNull[T any](a Expr[sql.Null[T]]) Expr[bool] {
	return combine[bool](queryir.IsNotNull{Expr: a.c.node}, ir.Bool, a.c)
}

// AsFloat converts an integer expression to REAL.
func AsFloat(a Expr[int64]) Expr[float64] {
	return combine[float64](queryir.CastFloat{Expr: a.c.node}, ir.Float, a.c)
}
