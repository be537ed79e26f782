package query

import (
	"database/sql"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
)

// collectAliases lists every alias a statement introduces.
func collectAliases(sel *queryir.Select) []alias.Alias {
	var out []alias.Alias
	for _, src := range sel.Sources {
		out = append(out, src.SourceAlias())
		if n, ok := src.(*queryir.Nested); ok {
			out = append(out, collectAliases(n.Select)...)
		}
	}
	for _, p := range sel.Outputs() {
		out = append(out, p.Alias)
	}
	return out
}

func TestJoinCache_SameFieldJoinsOnce(t *testing.T) {
	p := NewPlan(library())
	book := p.From("book")

	a := book.Ref("author").Text("name")
	b := book.Ref("author").Text("name")
	require.NoError(t, a.Err())
	assert.Equal(t, a.c.node, b.c.node)

	c := &Cacher{plan: p}
	Cache(c, a)
	Cache(c, b)
	sel, err := p.Build()
	require.NoError(t, err)
	assert.Len(t, sel.Sources, 2, "one source plus one join")
}

func TestJoinCache_DistinctFieldsJoinSeparately(t *testing.T) {
	p := NewPlan(library())
	book := p.From("book")

	author := book.Ref("author").Text("name")
	editor := book.Ref("editor").Text("name")
	require.NoError(t, author.Err())
	require.NoError(t, editor.Err())
	assert.NotEqual(t, author.c.node, editor.c.node)

	sel, err := p.Build()
	require.NoError(t, err)
	require.Len(t, sel.Sources, 3)
	assert.Equal(t, "author", sel.Sources[1].(*queryir.Table).Name)
	assert.Equal(t, "author", sel.Sources[2].(*queryir.Table).Name)
}

func TestJoinCache_IDDoesNotJoin(t *testing.T) {
	p := NewPlan(library())
	book := p.From("book")

	id := book.Ref("author").ID()
	require.NoError(t, id.Err())
	assert.Equal(t, ir.ID("author"), id.Type())
	assert.Equal(t, queryir.Column{Source: 1, Field: queryir.Named("author")}, id.c.node)

	sel, err := p.Build()
	require.NoError(t, err)
	assert.Len(t, sel.Sources, 1)
}

func TestJoinCache_ChainedRefsFollowTheirRoot(t *testing.T) {
	s := library()
	s.Table("review", func(t *schema.TableBuilder) {
		t.Ref("book", "book").Text("body")
	})
	p := NewPlan(s)
	review := p.From("review")
	other := p.From("author")
	name := review.Ref("book").Ref("author").Text("name")
	require.NoError(t, name.Err())

	sel, err := p.Build()
	require.NoError(t, err)
	names := make([]string, len(sel.Sources))
	for i, src := range sel.Sources {
		names[i] = src.(*queryir.Table).Name
	}
	// Joins are placed after the source they hang off, ahead of later
	// sources.
	assert.Equal(t, []string{"review", "book", "author", "author"}, names)
	assert.Equal(t, other.alias, sel.Sources[3].SourceAlias())
	require.NoError(t, queryir.Validate(sel))
}

func TestAliases_PairwiseDistinct(t *testing.T) {
	p := NewPlan(music())
	album := p.From("album")
	artistName := album.Ref("artist").Text("name")
	count := Sub(p, func(q *Plan) Expr[int64] {
		track := q.From("track")
		q.Filter(Eq(Col[ID](track, "album"), album.ID()))
		q.Filter(Lt(track.Int("ms"), 60000))
		return Count(q)
	})
	longest := Sub(p, func(q *Plan) Expr[sql.Null[int64]] {
		track := q.From("track")
		q.Filter(Eq(Col[ID](track, "album"), album.ID()))
		return Max(q, track.Int("ms"))
	})
	SortBy(p, album.Text("title"))

	c := &Cacher{plan: p}
	Cache(c, artistName)
	Cache(c, count)
	Cache(c, longest)

	sel, err := p.Build()
	require.NoError(t, err)

	all := collectAliases(sel)
	seen := make(map[alias.Alias]bool)
	for _, a := range all {
		assert.False(t, seen[a], "alias %s used twice", a)
		seen[a] = true
	}
	assert.Len(t, seen, len(all))
	require.NoError(t, queryir.Validate(sel))
}

func TestScope_ExpressionFromUnrelatedPlanRejected(t *testing.T) {
	s := library()
	p1 := NewPlan(s)
	p2 := NewPlan(s)
	title := p1.From("book").Text("title")
	p2.From("book")

	p2.Filter(Lt(title, "M"))
	_, err := p2.Build()
	require.Error(t, err)
	assert.True(t, IsScopeError(err))
}

func TestScope_CombiningUnrelatedPlansPoisonsExpression(t *testing.T) {
	s := library()
	a := NewPlan(s).From("book").ID()
	b := NewPlan(s).From("book").ID()

	eq := Eq(a, b)
	assert.True(t, IsScopeError(eq.Err()))

	p := NewPlan(s)
	p.Filter(eq)
	_, err := p.Build()
	assert.True(t, IsScopeError(err))
}

func TestScope_NestedRowNotVisibleOutside(t *testing.T) {
	p := NewPlan(music())
	album := p.From("album")
	var inner Expr[string]
	Sub(p, func(q *Plan) Expr[int64] {
		track := q.From("track")
		q.Filter(Eq(Col[ID](track, "album"), album.ID()))
		inner = track.Text("name")
		return Count(q)
	})

	p.Filter(Lt(inner, "x"))
	_, err := p.Build()
	assert.True(t, IsScopeError(err))
}

func TestScope_OuterRowVisibleInside(t *testing.T) {
	p := NewPlan(music())
	album := p.From("album")
	count := Sub(p, func(q *Plan) Expr[int64] {
		track := q.From("track")
		q.Filter(Eq(Col[ID](track, "album"), album.ID()))
		q.Filter(Lt(album.Text("title"), "Z"))
		return Count(q)
	})
	require.NoError(t, count.Err())
	_, err := p.Build()
	assert.NoError(t, err)
}

func TestTypes_IdentifiersOfDifferentTables(t *testing.T) {
	p := NewPlan(library())
	book := p.From("book")
	author := p.From("author")

	bad := Eq(book.ID(), author.ID())
	assert.True(t, IsTypeError(bad.Err()))

	good := Eq(Col[ID](book, "author"), author.ID())
	assert.NoError(t, good.Err())
}

func TestTypes_ColumnReadAsWrongGoType(t *testing.T) {
	p := NewPlan(music())
	track := p.From("track")

	assert.True(t, IsTypeError(Col[string](track, "ms").Err()))
	assert.True(t, IsTypeError(Col[float64](track, "rating").Err()), "rating is nullable")
	assert.NoError(t, Col[sql.Null[float64]](track, "rating").Err())
	assert.NoError(t, track.Bool("explicit").Err())
	assert.NoError(t, track.Column("rating").Err())

	_, err := p.Build()
	assert.True(t, IsTypeError(err))
}

func TestTypes_UnwrapOrDefault(t *testing.T) {
	p := NewPlan(music())
	track := p.From("track")

	rating := UnwrapOr(Col[sql.Null[float64]](track, "rating"), Const(0.0))
	require.NoError(t, rating.Err())
	assert.Equal(t, ir.Float, rating.Type())
}

func TestUnknownNames(t *testing.T) {
	p := NewPlan(music())
	assert.True(t, IsUnknownError(p.From("nope").Text("x").Err()))

	p = NewPlan(music())
	assert.True(t, IsUnknownError(p.From("track").Text("nope").Err()))

	p = NewPlan(music())
	r := p.From("track").Ref("name")
	assert.True(t, IsTypeError(r.Text("x").Err()), "name is not a foreign key")
}

func TestPlan_BuildTwice(t *testing.T) {
	p := NewPlan(library())
	p.From("book")

	_, err := p.Build()
	require.NoError(t, err)

	_, err = p.Build()
	assert.True(t, IsConsumedError(err))

	// Mutating a consumed plan is refused too.
	p.From("author")
	assert.True(t, IsConsumedError(p.Err()))
}

func TestPlan_NestedBuildRefused(t *testing.T) {
	p := NewPlan(music())
	Sub(p, func(q *Plan) Expr[int64] {
		q.From("track")
		_, err := q.Build()
		var qe *Error
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, ErrCodeUnsupported, qe.Code)
		return Count(q)
	})
}

func TestPick_OutsideNestedPlanRejected(t *testing.T) {
	p := NewPlan(music())
	track := p.From("track")
	e := Pick(p, track.Text("name"))
	var qe *Error
	require.ErrorAs(t, e.Err(), &qe)
	assert.Equal(t, ErrCodeUnsupported, qe.Code)

	p = NewPlan(music())
	p.From("album")
	albums := Count(p)
	Sub(p, func(q *Plan) Expr[int64] {
		q.From("track")
		return Pick(q, albums)
	})
	_, err := p.Build()
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ErrCodeUnsupported, qe.Code)
}

func TestPlan_AggregateFilterRejected(t *testing.T) {
	p := NewPlan(music())
	p.From("track")
	p.Filter(Lt(Count(p), 3))
	_, err := p.Build()
	var qe *Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ErrCodeUnsupported, qe.Code)
}

func TestPlan_CompiledSQL_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name  string
		build func() *queryir.Select
	}{
		{"book_author_join", func() *queryir.Select {
			p := NewPlan(library())
			book := p.From("book")
			c := &Cacher{plan: p}
			Two(book.Text("title"), book.Ref("author").Text("name"))(c)
			sel, err := p.Build()
			require.NoError(t, err)
			return sel
		}},
		{"tracks_per_album", func() *queryir.Select {
			p := NewPlan(music())
			album := p.From("album")
			count := Sub(p, func(q *Plan) Expr[int64] {
				track := q.From("track")
				q.Filter(Eq(Col[ID](track, "album"), album.ID()))
				return Count(q)
			})
			SortBy(p, album.Text("title"))
			c := &Cacher{plan: p}
			Two(album.Text("title"), count)(c)
			sel, err := p.Build()
			require.NoError(t, err)
			return sel
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, d := range []querysql.Dialect{querysql.SQLite, querysql.Postgres} {
				sql, _, err := querysql.NewCompiler(d).Compile(tt.build())
				require.NoError(t, err)
				g.Assert(t, d.Name()+"_"+tt.name, []byte(sql+"\n"))
			}
		})
	}
}
