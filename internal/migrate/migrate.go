// Package migrate evolves a SQLite database through declared schema
// versions inside one exclusive transaction.
//
// A migration run moves through these states:
//
//	Prepare -> Prepared -> CreateEmpty/CreateSQL -> Migrator(v0)
//	        -> Migrate -> Migrator(v1) -> ... -> Finish -> Database
//
// The stamped version lives in PRAGMA user_version. Steps only run when
// the stamped version equals the version the Migrator expects, so a chain
// of Migrate calls written for every historical version brings any
// database up to date and is a no-op on one that already is. Finish
// commits only when the database reached the expected version.
//
// After every step PRAGMA foreign_key_check must come back empty and the
// live schema must equal the declared one. Either failure aborts the run
// and rolls back everything, leaving the stamped version unchanged.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
)

// Option configures Prepare.
type Option func(*run)

// WithLogger sets the logger steps are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(r *run) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunID overrides how the run id attached to every log line is
// generated. The default is a random UUID.
func WithRunID(gen func() string) Option {
	return func(r *run) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// run is the connection and transaction shared by every stage of one
// migration. Both are passed explicitly to the helpers that use them.
type run struct {
	st     *store.Store
	conn   *sql.Conn
	tx     *sql.Tx
	logger *slog.Logger
	newID  func() string
	done   bool
}

// Prepared holds an open exclusive transaction on a store whose initial
// schema has not been established yet.
type Prepared struct {
	run *run
}

// Prepare reserves a dedicated connection, turns foreign key enforcement
// off on it and begins an exclusive transaction.
func Prepare(ctx context.Context, st *store.Store, opts ...Option) (*Prepared, error) {
	r := &run{st: st, logger: st.Logger(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("run_id", r.newID())

	conn, err := st.Conn(ctx)
	if err != nil {
		return nil, err
	}
	// foreign_keys cannot change inside a transaction.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		restoreForeignKeys(ctx, conn, r.logger)
		conn.Close()
		return nil, fmt.Errorf("begin exclusive transaction: %w", err)
	}
	r.conn, r.tx = conn, tx
	r.logger.Info("migration started", "path", st.Path())
	return &Prepared{run: r}, nil
}

// CreateEmpty creates empty tables for v0 if the database is new. It
// returns ok == false, after rolling back, when the database is stamped
// with a version older than v0.
func (p *Prepared) CreateEmpty(ctx context.Context, v0 *schema.Schema) (*Migrator, bool, error) {
	return p.create(ctx, v0, func(ctx context.Context, sess *query.Session) error {
		for _, ct := range v0.CreateStmts() {
			if _, err := sess.Exec(ctx, ct); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateSQL runs raw statements if the database is new; they must build
// exactly the tables of v0. Version gating is the same as CreateEmpty.
func (p *Prepared) CreateSQL(ctx context.Context, v0 *schema.Schema, stmts []string) (*Migrator, bool, error) {
	return p.create(ctx, v0, func(ctx context.Context, _ *query.Session) error {
		for _, stmt := range stmts {
			p.run.logger.Debug("exec", "sql", stmt)
			if _, err := p.run.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", stmt, err)
			}
		}
		return nil
	})
}

func (p *Prepared) create(ctx context.Context, v0 *schema.Schema, init func(context.Context, *query.Session) error) (*Migrator, bool, error) {
	r := p.run
	if r.done {
		return nil, false, fmt.Errorf("migration already finished")
	}
	if err := v0.Check(); err != nil {
		return nil, false, r.abort(ctx, err)
	}

	cookie, err := r.pragma(ctx, "schema_version")
	if err != nil {
		return nil, false, r.abort(ctx, execError(v0.Version, "read schema_version", err))
	}

	if cookie == 0 {
		r.logger.Info("initializing new database", "version", v0.Version)
		sess := query.NewSession(r.tx, v0, query.WithLogger(r.logger))
		if err := init(ctx, sess); err != nil {
			return nil, false, r.abort(ctx, execError(v0.Version, "initialize database", err))
		}
		if err := r.verify(ctx, v0); err != nil {
			return nil, false, r.abort(ctx, err)
		}
		if err := r.stamp(ctx, v0.Version); err != nil {
			return nil, false, r.abort(ctx, err)
		}
	}

	stamped, err := r.pragma(ctx, "user_version")
	if err != nil {
		return nil, false, r.abort(ctx, execError(v0.Version, "read user_version", err))
	}
	if stamped < v0.Version {
		r.logger.Warn("database older than initial schema", "stamped", stamped, "version", v0.Version)
		return nil, false, r.abort(ctx, nil)
	}
	if cookie != 0 && stamped == v0.Version {
		if err := r.verify(ctx, v0); err != nil {
			return nil, false, r.abort(ctx, err)
		}
	}
	return &Migrator{run: r, current: v0}, true, nil
}

// Migrator carries the schema version a database is expected to be at.
type Migrator struct {
	run     *run
	current *schema.Schema
}

// Schema returns the schema the Migrator expects.
func (m *Migrator) Schema() *schema.Schema { return m.current }

// Migrate moves the database from the Migrator's schema to next by
// running fn's steps, if the database is stamped with the Migrator's
// version. Otherwise the database is already past this step and the
// returned Migrator simply expects next.
func (m *Migrator) Migrate(ctx context.Context, next *schema.Schema, fn func(b *Builder) error) (*Migrator, error) {
	r := m.run
	if r.done {
		return nil, fmt.Errorf("migration already finished")
	}
	if next.Version <= m.current.Version {
		return nil, r.abort(ctx, &Error{
			Code:    ErrCodeVersionOrder,
			Message: fmt.Sprintf("version %d does not follow %d", next.Version, m.current.Version),
			Version: next.Version,
		})
	}

	stamped, err := r.pragma(ctx, "user_version")
	if err != nil {
		return nil, r.abort(ctx, execError(next.Version, "read user_version", err))
	}
	if stamped != m.current.Version {
		r.logger.Debug("migration step skipped", "stamped", stamped, "from", m.current.Version, "to", next.Version)
		return &Migrator{run: r, current: next}, nil
	}

	if err := next.Check(); err != nil {
		return nil, r.abort(ctx, err)
	}

	logger := r.logger.With("from", m.current.Version, "to", next.Version)
	logger.Info("migrating")

	b := newBuilder(r, m.current, next, logger)
	if fn != nil {
		if err := fn(b); err != nil {
			return nil, r.abort(ctx, execError(next.Version, "build migration", err))
		}
	}
	if err := b.apply(ctx); err != nil {
		return nil, r.abort(ctx, err)
	}
	if err := r.verify(ctx, next); err != nil {
		return nil, r.abort(ctx, err)
	}
	if err := r.stamp(ctx, next.Version); err != nil {
		return nil, r.abort(ctx, err)
	}
	return &Migrator{run: r, current: next}, nil
}

// Finish commits the migration if the database is at the Migrator's
// version and returns a handle for ordinary queries. When the database is
// at a newer version the transaction is rolled back and ok is false.
func (m *Migrator) Finish(ctx context.Context) (*Database, bool, error) {
	r := m.run
	if r.done {
		return nil, false, fmt.Errorf("migration already finished")
	}
	stamped, err := r.pragma(ctx, "user_version")
	if err != nil {
		return nil, false, r.abort(ctx, execError(m.current.Version, "read user_version", err))
	}
	if stamped != m.current.Version {
		r.logger.Warn("database is newer than expected", "stamped", stamped, "version", m.current.Version)
		return nil, false, r.abort(ctx, nil)
	}

	r.done = true
	if err := r.tx.Commit(); err != nil {
		restoreForeignKeys(ctx, r.conn, r.logger)
		r.conn.Close()
		return nil, false, execError(m.current.Version, "commit", err)
	}
	restoreForeignKeys(ctx, r.conn, r.logger)
	if err := r.conn.Close(); err != nil {
		return nil, false, fmt.Errorf("release connection: %w", err)
	}
	r.logger.Info("migration committed", "version", m.current.Version)
	return newDatabase(r.st, m.current), true, nil
}

// abort rolls back and releases the connection. It returns cause so
// callers can write `return r.abort(ctx, err)`.
func (r *run) abort(ctx context.Context, cause error) error {
	if r.done {
		return cause
	}
	r.done = true
	if err := r.tx.Rollback(); err != nil {
		r.logger.Error("rollback failed", "error", err)
	}
	restoreForeignKeys(ctx, r.conn, r.logger)
	if err := r.conn.Close(); err != nil {
		r.logger.Error("release connection failed", "error", err)
	}
	if cause != nil {
		r.logger.Error("migration rolled back", "error", cause)
	} else {
		r.logger.Info("migration rolled back")
	}
	return cause
}

func restoreForeignKeys(ctx context.Context, conn *sql.Conn, logger *slog.Logger) {
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		logger.Error("restore foreign keys failed", "error", err)
	}
}

func (r *run) pragma(ctx context.Context, name string) (int64, error) {
	var v int64
	if err := r.tx.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *run) stamp(ctx context.Context, version int64) error {
	// PRAGMA arguments cannot be bound as parameters.
	if _, err := r.tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return execError(version, "stamp user_version", err)
	}
	r.logger.Info("version stamped", "version", version)
	return nil
}

// verify checks referential integrity and that the live schema equals
// want.
func (r *run) verify(ctx context.Context, want *schema.Schema) error {
	violations, err := r.foreignKeyViolations(ctx)
	if err != nil {
		return execError(want.Version, "foreign key check", err)
	}
	if violations > 0 {
		return &Error{
			Code:    ErrCodeIntegrity,
			Message: fmt.Sprintf("%d rows violate foreign key constraints", violations),
			Version: want.Version,
		}
	}

	live, err := schema.ReadLive(ctx, r.tx)
	if err != nil {
		return execError(want.Version, "read live schema", err)
	}
	if !schema.Equal(want, live) {
		return &Error{
			Code:    ErrCodeSchemaDrift,
			Message: "live schema differs from declared schema",
			Version: want.Version,
			Diff:    schema.Diff(want, live),
		}
	}
	return nil
}

func (r *run) foreignKeyViolations(ctx context.Context) (int, error) {
	rows, err := r.tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
