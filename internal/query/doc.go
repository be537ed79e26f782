// Package query builds typed SELECT plans and runs them as single SQL
// statements.
//
// A Plan collects sources, filters, group keys, sort keys and nested
// correlated plans. Expressions are Expr[T] values whose Go type parameter
// is the type a result row decodes them into; runtime type tags catch what
// the Go type system cannot, such as comparing identifiers of different
// tables.
//
// # Scoping
//
// Every expression remembers the plan it was built under. A plan accepts
// expressions built under itself or a plan enclosing it; anything else is
// an ErrCodeScopeMismatch construction error. Errors are sticky: the first
// one a plan sees is returned by Build, and nothing is executed.
//
// # Joins
//
// Row.Ref follows a foreign key lazily. The first column read through the
// returned Row adds one INNER JOIN to the plan; later reads through the
// same field reuse it.
//
// # Example
//
//	rows, err := query.Collect(ctx, sess, func(p *query.Plan) query.Mapper[query.Pair[string, string]] {
//		book := p.From("book")
//		return query.Two(book.Text("title"), book.Ref("author").Text("name"))
//	})
package query
