// Package store opens the SQLite databases relq queries and migrates.
//
// A Store wraps a *sql.DB configured for one SQLite file through either
// driver the module links:
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo, the default)
//   - "sqlite": modernc.org/sqlite (pure Go)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: 5 second wait on lock contention
//   - foreign_keys=ON: Referential integrity enforced
//   - _txlock=exclusive: every BEGIN takes the write lock up front, so a
//     migration transaction excludes every other writer from its start
//
// Per-connection settings travel in the DSN so a reconnecting pool keeps
// them. The pool holds a single connection.
package store
