package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

func library() *schema.Schema {
	return schema.New(1).
		Table("author", func(t *schema.TableBuilder) {
			t.Text("name")
		}).
		Table("book", func(t *schema.TableBuilder) {
			t.Text("title").Ref("author", "author").Ref("editor", "author")
		})
}

func music() *schema.Schema {
	return schema.New(1).
		Table("artist", func(t *schema.TableBuilder) {
			t.Text("name").Unique("name")
		}).
		Table("album", func(t *schema.TableBuilder) {
			t.Text("title").Ref("artist", "artist")
		}).
		Table("track", func(t *schema.TableBuilder) {
			t.Ref("album", "album").Text("name").Int("ms").Int("explicit").NullFloat("rating")
		})
}

// openSession creates a fresh store holding the tables of s.
func openSession(t *testing.T, s *schema.Schema) *Session {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	st, err := store.Open(ctx, testutil.TempDBPath(t), store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	stmts, err := s.DDL(querysql.SQLite)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := st.DB().ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	return NewSession(st.DB(), s, WithLogger(logger))
}

func mustInsert(t *testing.T, sess *Session, table string, fn func(w *Writer)) ID {
	t.Helper()
	id, err := sess.Insert(context.Background(), table, fn)
	require.NoError(t, err)
	return id
}
