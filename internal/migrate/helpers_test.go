package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

func booksV1() *schema.Schema {
	return schema.New(1).
		Table("author", func(t *schema.TableBuilder) {
			t.Text("name")
		}).
		Table("book", func(t *schema.TableBuilder) {
			t.Text("title").Ref("author", "author")
		})
}

// booksV2 adds a year to every book.
func booksV2() *schema.Schema {
	return schema.New(2).
		Table("author", func(t *schema.TableBuilder) {
			t.Text("name")
		}).
		Table("book", func(t *schema.TableBuilder) {
			t.Text("title").Ref("author", "author").Int("year")
		})
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), path, store.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func prepare(t *testing.T, st *store.Store) *Prepared {
	t.Helper()
	p, err := Prepare(context.Background(), st,
		WithLogger(testutil.NewTestLogger(t)),
		WithRunID(testutil.FixedRunID(t.Name())),
	)
	require.NoError(t, err)
	return p
}

// bootstrap creates s on an empty store and commits.
func bootstrap(t *testing.T, st *store.Store, s *schema.Schema) *Database {
	t.Helper()
	ctx := context.Background()
	m, ok, err := prepare(t, st).CreateEmpty(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	return db
}

func seedBooks(t *testing.T, db *Database) []query.ID {
	t.Helper()
	ctx := context.Background()
	tolkien, err := db.Insert(ctx, "author", func(w *query.Writer) {
		w.Set("name", query.Const("Tolkien"))
	})
	require.NoError(t, err)

	var ids []query.ID
	for _, title := range []string{"The Hobbit", "LOTR"} {
		id, err := db.Insert(ctx, "book", func(w *query.Writer) {
			w.Set("title", query.Const(title))
			w.Set("author", query.Const(tolkien))
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func countRows(t *testing.T, sess *query.Session, table string) int64 {
	t.Helper()
	n, err := query.Collect(context.Background(), sess, func(p *query.Plan) query.Mapper[int64] {
		p.From(table)
		return query.One(query.Count(p))
	})
	require.NoError(t, err)
	require.Len(t, n, 1)
	return n[0]
}

func storeVersion(t *testing.T, st *store.Store) int64 {
	t.Helper()
	v, err := st.Version(context.Background())
	require.NoError(t, err)
	return v
}
