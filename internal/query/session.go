package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
)

// Executor is the subset of *sql.DB, *sql.Conn and *sql.Tx a Session uses.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Session compiles plans against a schema and runs them on an Executor.
type Session struct {
	db       Executor
	schema   *schema.Schema
	compiler *querysql.Compiler
	logger   *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger compiled statements are reported to at
// debug level.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithDialect sets the SQL dialect. The default is SQLite.
func WithDialect(d querysql.Dialect) SessionOption {
	return func(s *Session) {
		s.compiler = querysql.NewCompiler(d)
	}
}

// NewSession creates a Session over db for schema s.
func NewSession(db Executor, s *schema.Schema, opts ...SessionOption) *Session {
	sess := &Session{
		db:       db,
		schema:   s,
		compiler: querysql.NewCompiler(querysql.SQLite),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(sess)
	}
	return sess
}

// Schema returns the schema plans of this session are built against.
func (s *Session) Schema() *schema.Schema { return s.schema }

// Compile renders stmt with the session's dialect.
func (s *Session) Compile(stmt queryir.Stmt) (string, []any, error) {
	return s.compiler.Compile(stmt)
}

// Exec compiles and runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, stmt queryir.Stmt) (sql.Result, error) {
	query, params, err := s.compiler.Compile(stmt)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "exec", "sql", query, "params", params)
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", query, err)
	}
	return res, nil
}

func (s *Session) query(ctx context.Context, stmt queryir.Stmt) (*sql.Rows, error) {
	query, params, err := s.compiler.Compile(stmt)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "query", "sql", query, "params", params)
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	return rows, nil
}

// Collect builds a plan with build, runs it as one statement and decodes
// every result row in the order the engine returns them.
func Collect[T any](ctx context.Context, s *Session, build func(p *Plan) Mapper[T]) ([]T, error) {
	p := NewPlan(s.schema)
	c := &Cacher{plan: p}
	decode := build(p)(c)

	sel, err := p.Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := c.scan(rows, sel.Leading())
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, decode(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}

// Insert writes one row to table and returns its id.
func (s *Session) Insert(ctx context.Context, table string, fn func(w *Writer)) (ID, error) {
	id, _, err := s.insert(ctx, table, fn, false)
	return id, err
}

// TryInsert writes one row to table unless it conflicts with a uniqueness
// constraint, in which case ok is false and nothing is written.
func (s *Session) TryInsert(ctx context.Context, table string, fn func(w *Writer)) (ID, bool, error) {
	return s.insert(ctx, table, fn, true)
}

func (s *Session) insert(ctx context.Context, table string, fn func(w *Writer), try bool) (ID, bool, error) {
	t, ok := s.schema.Lookup(table)
	if !ok {
		return 0, false, newError(ErrCodeUnknownTable, "unknown table %q", table).with("table", table)
	}
	w := NewWriter(t, nil)
	fn(w)
	if err := w.Err(); err != nil {
		return 0, false, err
	}

	res, err := s.Exec(ctx, &queryir.Insert{
		Table:               table,
		Columns:             w.Columns(),
		Values:              w.vals,
		OnConflictDoNothing: try,
	})
	if err != nil {
		return 0, false, err
	}
	if try {
		n, err := res.RowsAffected()
		if err != nil {
			return 0, false, fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return 0, false, nil
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return ID(id), true, nil
}
