package querysql

import (
	"fmt"
	"strconv"
)

// Dialect covers the spelling differences between engines.
type Dialect interface {
	// Name is the identifier used in configuration ("sqlite", "postgres").
	Name() string
	// Placeholder renders the n-th bound parameter, counting from 1.
	Placeholder(n int) string
	// IfNull is the two-argument null-coalescing function.
	IfNull() string
	// FloatType is the CAST target for floating point.
	FloatType() string
	// Lateral reports whether nested selects may be joined laterally. When
	// false, nested outputs are inlined as correlated scalar subqueries.
	Lateral() bool
	// DistinctOn reports whether grouped plans without aggregates keep one
	// row per group with DISTINCT ON instead of GROUP BY.
	DistinctOn() bool
	// ColumnType maps a storage class to the engine's column type.
	ColumnType(storage string) string
	// PrimaryKey is the column type clause of the implicit id column.
	PrimaryKey() string
	// TableSuffix follows the closing parenthesis of CREATE TABLE.
	TableSuffix(strict bool) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) IfNull() string         { return "IFNULL" }
func (sqliteDialect) FloatType() string      { return "REAL" }
func (sqliteDialect) Lateral() bool          { return false }
func (sqliteDialect) DistinctOn() bool       { return false }

func (sqliteDialect) ColumnType(storage string) string { return storage }
func (sqliteDialect) PrimaryKey() string               { return "INTEGER PRIMARY KEY" }

func (sqliteDialect) TableSuffix(strict bool) string {
	if strict {
		return " STRICT"
	}
	return ""
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) IfNull() string           { return "COALESCE" }
func (postgresDialect) FloatType() string        { return "DOUBLE PRECISION" }
func (postgresDialect) Lateral() bool            { return true }
func (postgresDialect) DistinctOn() bool         { return true }
func (postgresDialect) TableSuffix(bool) string  { return "" }

func (postgresDialect) ColumnType(storage string) string {
	switch storage {
	case "INTEGER":
		return "BIGINT"
	case "REAL":
		return "DOUBLE PRECISION"
	default:
		return storage
	}
}

func (postgresDialect) PrimaryKey() string {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

// SQLite is the dialect executed by the store.
var SQLite Dialect = sqliteDialect{}

// Postgres renders the lateral-join form of every plan.
var Postgres Dialect = postgresDialect{}

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q: must be sqlite or postgres", name)
	}
}
