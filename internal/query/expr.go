package query

import (
	"database/sql"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

// ID is a row identifier.
type ID int64

// scope identifies the plan an expression was built under. Nested plans
// chain to their enclosing plan so correlated references stay legal.
type scope struct {
	parent *scope
}

// within reports whether s is inner or equal to outer.
func (s *scope) within(outer *scope) bool {
	for c := s; c != nil; c = c.parent {
		if c == outer {
			return true
		}
	}
	return false
}

// join returns the innermost of a and b, or false when neither encloses
// the other. A nil scope (constants) joins with anything.
func join(a, b *scope) (*scope, bool) {
	switch {
	case a == nil:
		return b, true
	case b == nil:
		return a, true
	case a.within(b):
		return a, true
	case b.within(a):
		return b, true
	default:
		return nil, false
	}
}

type core struct {
	node queryir.Expr
	typ  ir.Type
	sc   *scope
	agg  bool
	err  error
}

// Expr is a typed scalar expression. T is the Go type a row decodes the
// expression into: int64, float64, string, bool, ID, sql.Null of one of
// those, or any for untyped column copies.
//
// The zero Expr is invalid. Expressions carry the first construction error
// they saw; every plan method that accepts one reports it.
type Expr[T any] struct {
	c core
}

// Any is an expression of unknown Go type, used where columns are set
// generically.
type Any interface {
	exprCore() core
}

func (e Expr[T]) exprCore() core { return e.c }

// Type returns the semantic type tag.
func (e Expr[T]) Type() ir.Type { return e.c.typ }

// Err returns the construction error carried by e, if any.
func (e Expr[T]) Err() error {
	if e.c.err == nil && e.c.node == nil {
		return newError(ErrCodeUnsupported, "use of zero expression")
	}
	return e.c.err
}

func failed[T any](err error) Expr[T] {
	return Expr[T]{c: core{err: err}}
}

// combine merges the scopes and errors of operands into a new node.
func combine[T any](node queryir.Expr, typ ir.Type, operands ...core) Expr[T] {
	out := core{node: node, typ: typ}
	for i, op := range operands {
		if op.err != nil {
			return failed[T](op.err)
		}
		if op.node == nil {
			return failed[T](newError(ErrCodeUnsupported, "use of zero expression"))
		}
		sc, ok := join(out.sc, op.sc)
		if !ok {
			return failed[T](newError(ErrCodeScopeMismatch,
				"operand %d belongs to a plan unrelated to the other operands", i))
		}
		out.sc = sc
		out.agg = out.agg || op.agg
	}
	return Expr[T]{c: out}
}

// typeOf maps a Go type parameter to its type tag. Identifier tags leave
// the table unknown.
func typeOf[T any]() (ir.Type, bool) {
	var zero T
	switch any(zero).(type) {
	case int64:
		return ir.Int, true
	case float64:
		return ir.Float, true
	case string:
		return ir.Text, true
	case bool:
		return ir.Bool, true
	case ID:
		return ir.Type{Kind: ir.KindID}, true
	case sql.Null[int64]:
		return ir.Int.Null(), true
	case sql.Null[float64]:
		return ir.Float.Null(), true
	case sql.Null[string]:
		return ir.Text.Null(), true
	case sql.Null[bool]:
		return ir.Bool.Null(), true
	case sql.Null[ID]:
		return ir.Type{Kind: ir.KindID, Nullable: true}, true
	default:
		return ir.Type{}, false
	}
}

// accepts reports whether a value tagged have may be read as T.
func accepts[T any](have ir.Type) bool {
	want, ok := typeOf[T]()
	if !ok {
		var zero T
		_, untyped := any(&zero).(*any)
		return untyped
	}
	if want.Kind == ir.KindBool && have.Kind == ir.KindInt && want.Nullable == have.Nullable {
		return true
	}
	return ir.Same(want, have)
}

// literal converts a Go constant into a bindable parameter value.
func literal(v any) any {
	switch x := v.(type) {
	case ID:
		return int64(x)
	case sql.Null[int64]:
		return nullValue(x.Valid, x.V)
	case sql.Null[float64]:
		return nullValue(x.Valid, x.V)
	case sql.Null[string]:
		return nullValue(x.Valid, x.V)
	case sql.Null[bool]:
		return nullValue(x.Valid, x.V)
	case sql.Null[ID]:
		return nullValue(x.Valid, int64(x.V))
	default:
		return v
	}
}

func nullValue(valid bool, v any) any {
	if !valid {
		return nil
	}
	return v
}
