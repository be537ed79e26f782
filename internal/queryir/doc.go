// Package queryir is the relational tree that sits between typed plan
// construction and SQL text.
//
//	[query.Plan] -> [queryir.Select] -> [querysql.Compiler] -> SQL + params
//	[schema DDL] -> [queryir.CreateTable] ---^
//
// Every node is a plain value. Stmt, Source and Expr are sealed with
// marker methods, so a backend can switch over them exhaustively:
//
//	switch s := stmt.(type) {
//	case *Select:
//	case *Insert:
//	case *CreateTable, *DropTable, *RenameTable:
//	}
//
// Names in the tree are never quoted; quoting and placeholder style belong
// to the dialect. Literal values are carried as Go values and always bound
// as parameters, never written into the SQL text.
//
// # Scoping
//
// Each source in a Select carries an alias. A column reference names the
// alias it reads from, which must belong to the same Select or to one that
// encloses it, and must be declared before the point of use. Nested
// selects may read outward; nothing reads inward except through the
// projections a nested select exports. Validate checks these rules together
// with alias uniqueness across the whole statement.
package queryir
