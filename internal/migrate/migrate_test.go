package migrate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

func addYear(b *Builder) error {
	b.MigrateTable("book", func(old *query.Row, w *query.Writer) {
		w.Set("title", old.Text("title"))
		w.Set("author", old.Ref("author").ID())
		w.Set("year", query.Const(int64(0)))
	})
	return nil
}

func TestCreateEmpty_NewDatabase(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))

	db := bootstrap(t, st, booksV1())
	assert.Equal(t, int64(1), storeVersion(t, st))

	live, err := schema.ReadLive(ctx, st.DB())
	require.NoError(t, err)
	assert.True(t, schema.Equal(booksV1(), live))
	assert.Same(t, st, db.Store())
	assert.Equal(t, int64(1), db.Schema().Version)
}

func TestMigrate_AddColumnPreservesIDs(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	ids := seedBooks(t, bootstrap(t, st, booksV1()))

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	m, err = m.Migrate(ctx, booksV2(), addYear)
	require.NoError(t, err)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(2), storeVersion(t, st))
	rows, err := query.Collect(ctx, db.Session(), func(p *query.Plan) query.Mapper[query.Triple[query.ID, string, int64]] {
		b := p.From("book")
		query.SortBy(p, b.ID())
		return query.Three(b.ID(), b.Text("title"), b.Int("year"))
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Triple[query.ID, string, int64]{
		{First: ids[0], Second: "The Hobbit", Third: 0},
		{First: ids[1], Second: "LOTR", Third: 0},
	}, rows)
}

func TestMigrate_TransformSortsAndFilters(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	ids := seedBooks(t, bootstrap(t, st, booksV1()))

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	m, err = m.Migrate(ctx, booksV2(), func(b *Builder) error {
		b.MigrateTable("book", func(old *query.Row, w *query.Writer) {
			p := old.Plan()
			query.SortBy(p, old.Text("title"))
			p.Filter(query.Lt(old.Text("title"), "M"))
			w.Set("title", old.Text("title"))
			w.Set("author", old.Ref("author").ID())
			w.Set("year", query.Const(int64(1954)))
		})
		return nil
	})
	require.NoError(t, err)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := query.Collect(ctx, db.Session(), func(p *query.Plan) query.Mapper[query.Triple[query.ID, string, int64]] {
		b := p.From("book")
		query.SortBy(p, b.ID())
		return query.Three(b.ID(), b.Text("title"), b.Int("year"))
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Triple[query.ID, string, int64]{
		{First: ids[1], Second: "LOTR", Third: 1954},
	}, rows)
}

func TestMigrate_SkipsStepsAlreadyApplied(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	seedBooks(t, bootstrap(t, st, booksV1()))

	upgrade := func() {
		m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
		require.NoError(t, err)
		require.True(t, ok)
		m, err = m.Migrate(ctx, booksV2(), addYear)
		require.NoError(t, err)
		_, ok, err = m.Finish(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	upgrade()

	called := false
	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	m, err = m.Migrate(ctx, booksV2(), func(b *Builder) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Schema().Version)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, called, "steps for an applied version must not run")
	assert.Equal(t, int64(2), storeVersion(t, st))
	assert.Equal(t, int64(2), countRows(t, db.Session(), "book"))
}

func TestFinish_DatabaseNewerThanCode(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bootstrap(t, st, booksV1())

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	m, err = m.Migrate(ctx, booksV2(), addYear)
	require.NoError(t, err)
	_, ok, err = m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Code that only knows version 1 opens a version 2 database.
	m, ok, err = prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, db)
	assert.Equal(t, int64(2), storeVersion(t, st))
}

func TestCreateEmpty_DatabaseOlderThanInitialSchema(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bootstrap(t, st, booksV1())

	v2 := booksV2()
	m, ok, err := prepare(t, st).CreateEmpty(ctx, v2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, m)
	assert.Equal(t, int64(1), storeVersion(t, st))
}

func TestMigrate_DanglingForeignKeyRejected(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	ids := seedBooks(t, bootstrap(t, st, booksV1()))

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Migrate(ctx, booksV2(), func(b *Builder) error {
		b.MigrateTable("book", func(old *query.Row, w *query.Writer) {
			w.Set("title", old.Text("title"))
			w.Set("author", query.Const(query.ID(99)))
			w.Set("year", query.Const(int64(1954)))
		})
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err), "got %v", err)

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, int64(2), me.Version)

	assert.Equal(t, int64(1), storeVersion(t, st))
	live, err := schema.ReadLive(ctx, st.DB())
	require.NoError(t, err)
	assert.True(t, schema.Equal(booksV1(), live), "rollback must restore the old tables")

	sess := query.NewSession(st.DB(), booksV1())
	authors, err := query.Collect(ctx, sess, func(p *query.Plan) query.Mapper[query.Pair[query.ID, string]] {
		b := p.From("book")
		query.SortBy(p, b.ID())
		return query.Two(b.ID(), b.Ref("author").Text("name"))
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Pair[query.ID, string]{
		{First: ids[0], Second: "Tolkien"},
		{First: ids[1], Second: "Tolkien"},
	}, authors)
}

func TestMigrate_SchemaDriftRejected(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bootstrap(t, st, booksV1())

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	// No step rebuilds book, so it still lacks year.
	_, err = m.Migrate(ctx, booksV2(), nil)
	require.Error(t, err)
	assert.True(t, IsDriftError(err), "got %v", err)

	var me *Error
	require.ErrorAs(t, err, &me)
	require.Len(t, me.Diff, 1)
	assert.Equal(t, schema.MissingColumn, me.Diff[0].Kind)
	assert.Equal(t, "book", me.Diff[0].Table)
	assert.Equal(t, "year", me.Diff[0].Column)
	assert.Equal(t, int64(1), storeVersion(t, st))
}

func TestMigrate_VersionMustIncrease(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Migrate(ctx, booksV1(), nil)
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodeVersionOrder))

	// The aborted run never committed version 1.
	assert.Equal(t, int64(0), storeVersion(t, st))
}

func TestMigrate_FinishedRunRefusesMoreWork(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Migrate(ctx, booksV2(), addYear)
	assert.Error(t, err)
	_, _, err = m.Finish(ctx)
	assert.Error(t, err)
}

func TestCreateSQL(t *testing.T) {
	v1 := booksV1()
	stmts, err := v1.DDL(querysql.SQLite)
	require.NoError(t, err)

	t.Run("matching statements", func(t *testing.T) {
		ctx := context.Background()
		st := openStore(t, testutil.TempDBPath(t))
		m, ok, err := prepare(t, st).CreateSQL(ctx, v1, stmts)
		require.NoError(t, err)
		require.True(t, ok)
		_, ok, err = m.Finish(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), storeVersion(t, st))
	})

	t.Run("statements that miss a table", func(t *testing.T) {
		ctx := context.Background()
		st := openStore(t, testutil.TempDBPath(t))
		_, ok, err := prepare(t, st).CreateSQL(ctx, v1, stmts[:1])
		require.Error(t, err)
		assert.False(t, ok)
		assert.True(t, IsDriftError(err), "got %v", err)
		assert.Equal(t, int64(0), storeVersion(t, st))
	})

	t.Run("invalid statement", func(t *testing.T) {
		ctx := context.Background()
		st := openStore(t, testutil.TempDBPath(t))
		_, _, err := prepare(t, st).CreateSQL(ctx, v1, []string{"CREATE TABLE"})
		require.Error(t, err)
		assert.True(t, IsExecError(err), "got %v", err)
	})
}

func TestCreateEmpty_ExistingDatabaseVerified(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bootstrap(t, st, booksV1())

	// Same version, different tables.
	other := schema.New(1).Table("author", func(t *schema.TableBuilder) {
		t.Text("name").NullText("bio")
	}).Table("book", func(t *schema.TableBuilder) {
		t.Text("title").Ref("author", "author")
	})
	_, ok, err := prepare(t, st).CreateEmpty(ctx, other)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, IsDriftError(err), "got %v", err)
}

func TestCreateEmpty_InvalidSchema(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bad := schema.New(1).Table("book", func(t *schema.TableBuilder) {
		t.Ref("author", "author")
	})
	_, ok, err := prepare(t, st).CreateEmpty(ctx, bad)
	require.Error(t, err)
	assert.False(t, ok)

	// The connection was released, so the store is usable again.
	assert.Equal(t, int64(0), storeVersion(t, st))
}

func TestBuilder_CreateFromAndDrop(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	seedBooks(t, bootstrap(t, st, booksV1()))

	v2 := schema.New(2).
		Table("author", func(t *schema.TableBuilder) {
			t.Text("name")
		}).
		Table("title", func(t *schema.TableBuilder) {
			t.Text("text").Text("by")
		}).
		Table("review", func(t *schema.TableBuilder) {
			t.Ref("title", "title").Int("stars")
		})

	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	m, err = m.Migrate(ctx, v2, func(b *Builder) error {
		b.CreateFrom("title", "book", func(old *query.Row, w *query.Writer) {
			w.Set("text", old.Text("title"))
			w.Set("by", old.Ref("author").Text("name"))
		})
		b.DropTable("book")
		return b.Err()
	})
	require.NoError(t, err)
	db, ok, err := m.Finish(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	titles, err := query.Collect(ctx, db.Session(), func(p *query.Plan) query.Mapper[query.Pair[string, string]] {
		tt := p.From("title")
		query.SortBy(p, tt.Text("text"))
		return query.Two(tt.Text("text"), tt.Text("by"))
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Pair[string, string]{
		{First: "LOTR", Second: "Tolkien"},
		{First: "The Hobbit", Second: "Tolkien"},
	}, titles)

	// review had no step and was created empty.
	assert.Equal(t, int64(0), countRows(t, db.Session(), "review"))
}

func TestBuilder_StepErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(b *Builder)
	}{
		{"migrate unknown table", func(b *Builder) {
			b.MigrateTable("shelf", func(*query.Row, *query.Writer) {})
		}},
		{"migrate table twice", func(b *Builder) {
			_ = addYear(b)
			_ = addYear(b)
		}},
		{"missing column", func(b *Builder) {
			b.MigrateTable("book", func(old *query.Row, w *query.Writer) {
				w.Set("title", old.Text("title"))
			})
		}},
		{"drop table kept by target", func(b *Builder) {
			b.DropTable("author")
		}},
		{"create existing table", func(b *Builder) {
			b.CreateFrom("author", "book", func(*query.Row, *query.Writer) {})
		}},
		{"new table absent from target", func(b *Builder) {
			b.NewTable("shelf")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := openStore(t, testutil.TempDBPath(t))
			bootstrap(t, st, booksV1())

			m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
			require.NoError(t, err)
			require.True(t, ok)
			_, err = m.Migrate(ctx, booksV2(), func(b *Builder) error {
				tt.fn(b)
				return nil
			})
			require.Error(t, err)
			assert.True(t, IsExecError(err), "got %v", err)
			assert.Equal(t, int64(1), storeVersion(t, st))
		})
	}
}

func TestMigrate_StepFunctionError(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))
	bootstrap(t, st, booksV1())

	boom := errors.New("boom")
	m, ok, err := prepare(t, st).CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Migrate(ctx, booksV2(), func(*Builder) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPrepare_LogsRunID(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, testutil.TempDBPath(t))

	var buf bytes.Buffer
	ids := testutil.NewSequentialRunIDs()
	p, err := Prepare(ctx, st,
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithRunID(ids.Next),
	)
	require.NoError(t, err)
	m, ok, err := p.CreateEmpty(ctx, booksV1())
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = m.Finish(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "run_id=test-run-0001")
	assert.Contains(t, buf.String(), "migration committed")
}

func TestCreateEmpty_RollsBackOnExecFailure(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	v1 := schema.New(1).Table("artist", func(t *schema.TableBuilder) {
		t.Text("name").Unique("name")
	})
	ddl, err := v1.DDL(querysql.SQLite)
	require.NoError(t, err)

	mock.ExpectExec("PRAGMA foreign_keys = OFF").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("PRAGMA schema_version").
		WillReturnRows(sqlmock.NewRows([]string{"schema_version"}).AddRow(0))
	mock.ExpectExec(ddl[0]).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()
	mock.ExpectExec("PRAGMA foreign_keys = ON").WillReturnResult(sqlmock.NewResult(0, 0))

	st := store.Wrap(db, store.WithLogger(testutil.NewTestLogger(t)))
	p, err := Prepare(ctx, st, WithRunID(testutil.FixedRunID("")))
	require.NoError(t, err)

	_, ok, err := p.CreateEmpty(ctx, v1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, IsExecError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}
