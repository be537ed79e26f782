package migrate

import (
	"context"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
)

// Database is a store known to match a schema version.
type Database struct {
	st      *store.Store
	schema  *schema.Schema
	session *query.Session
}

func newDatabase(st *store.Store, s *schema.Schema) *Database {
	return &Database{
		st:      st,
		schema:  s,
		session: query.NewSession(st.DB(), s, query.WithLogger(st.Logger())),
	}
}

// Schema returns the schema the database was migrated to.
func (d *Database) Schema() *schema.Schema { return d.schema }

// Session returns a session for building queries against the database.
func (d *Database) Session() *query.Session { return d.session }

// Store returns the underlying store.
func (d *Database) Store() *store.Store { return d.st }

// Insert writes one row and returns its id.
func (d *Database) Insert(ctx context.Context, table string, fn func(w *query.Writer)) (query.ID, error) {
	return d.session.Insert(ctx, table, fn)
}

// TryInsert writes one row unless it violates a uniqueness constraint.
func (d *Database) TryInsert(ctx context.Context, table string, fn func(w *query.Writer)) (query.ID, bool, error) {
	return d.session.TryInsert(ctx, table, fn)
}
