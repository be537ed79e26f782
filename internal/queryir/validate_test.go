package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func albumTrackCount() *Select {
	// SELECT album, count(track where track.album = album.id)
	return &Select{
		Sources: []Source{
			&Table{Name: "album", Alias: 1},
			&Nested{Alias: 2, Select: &Select{
				Sources: []Source{&Table{Name: "track", Alias: 3}},
				Where: []Expr{Binary{
					Op:    OpEq,
					Left:  Column{Source: 3, Field: Named("album")},
					Right: Column{Source: 1, Field: Named("id")},
				}},
				Aggregates: []Projection{{Alias: 4, Expr: Aggregate{Func: AggCount}}},
			}},
		},
		Columns: []Projection{
			{Alias: 5, Expr: Column{Source: 1, Field: Named("title")}},
			{Alias: 6, Expr: Column{Source: 2, Field: Generated(4)}},
		},
	}
}

func TestValidate_CorrelatedNestedSelect(t *testing.T) {
	assert.NoError(t, Validate(albumTrackCount()))
}

func TestValidate_DuplicateAlias(t *testing.T) {
	sel := &Select{
		Sources: []Source{
			&Table{Name: "album", Alias: 1},
			&Table{Name: "album", Alias: 1},
		},
	}
	err := Validate(sel)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Problems, "alias _1 declared twice")
}

func TestValidate_ProjectionAliasCollidesWithSource(t *testing.T) {
	sel := &Select{
		Sources: []Source{&Table{Name: "album", Alias: 1}},
		Columns: []Projection{{Alias: 1, Expr: Column{Source: 1, Field: Named("title")}}},
	}
	assert.Error(t, Validate(sel))
}

func TestValidate_InwardReferenceRejected(t *testing.T) {
	sel := albumTrackCount()
	// The outer select may not read the nested select's own table.
	sel.Where = []Expr{Column{Source: 3, Field: Named("name")}}
	err := Validate(sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in scope")
}

func TestValidate_NestedReadsLaterSourceRejected(t *testing.T) {
	sel := &Select{
		Sources: []Source{
			&Nested{Alias: 2, Select: &Select{
				Aggregates: []Projection{{Alias: 3, Expr: Aggregate{Func: AggMax, Arg: Column{Source: 1, Field: Named("id")}}}},
			}},
			&Table{Name: "album", Alias: 1},
		},
	}
	assert.Error(t, Validate(sel))
}

func TestValidate_GeneratedFieldChecks(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
	}{
		{"generated field on table", Column{Source: 1, Field: Generated(4)}},
		{"named field on nested", Column{Source: 2, Field: Named("count")}},
		{"unknown nested output", Column{Source: 2, Field: Generated(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := albumTrackCount()
			sel.Where = []Expr{tt.expr}
			assert.Error(t, Validate(sel))
		})
	}
}

func TestValidate_Aggregates(t *testing.T) {
	ok := &Select{Aggregates: []Projection{{Alias: 1, Expr: Aggregate{Func: AggCount}}}}
	assert.NoError(t, Validate(ok))

	bad := &Select{Aggregates: []Projection{{Alias: 1, Expr: Aggregate{Func: AggSum}}}}
	assert.Error(t, Validate(bad))
}

func TestValidate_Insert(t *testing.T) {
	good := &Insert{
		Table:   "artist",
		Columns: []string{"name"},
		Values:  []Expr{Literal{Value: "Queen"}},
	}
	assert.NoError(t, Validate(good))

	short := &Insert{Table: "artist", Columns: []string{"name", "born"}, Values: []Expr{Literal{Value: "Queen"}}}
	assert.Error(t, Validate(short))

	fromQuery := &Insert{
		Table:   "_tmp_9",
		Columns: []string{"id", "title"},
		Query: &Select{
			Sources: []Source{&Table{Name: "book", Alias: 1}},
			Columns: []Projection{
				{Alias: 2, Expr: Column{Source: 1, Field: Named("id")}},
				{Alias: 3, Expr: Column{Source: 1, Field: Named("title")}},
			},
		},
	}
	assert.NoError(t, Validate(fromQuery))

	// Sort keys are not written.
	fromQuery.Query.Sort = []Projection{{Alias: 4, Expr: Column{Source: 1, Field: Named("title")}}}
	assert.NoError(t, Validate(fromQuery))
	assert.Equal(t, 1, fromQuery.Query.Leading())

	fromQuery.Columns = fromQuery.Columns[:1]
	assert.Error(t, Validate(fromQuery))
}

func TestValidate_DDL(t *testing.T) {
	assert.NoError(t, Validate(&CreateTable{Name: "t", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}}}))
	assert.Error(t, Validate(&CreateTable{Name: "t"}))
	assert.NoError(t, Validate(&DropTable{Name: "t"}))
	assert.Error(t, Validate(&RenameTable{From: "t"}))
	assert.Error(t, Validate(nil))
}

func TestSelect_OutputOrder(t *testing.T) {
	sel := &Select{
		Group:      []Projection{{Alias: 1}},
		Aggregates: []Projection{{Alias: 2}},
		Sort:       []Projection{{Alias: 3}},
		Columns:    []Projection{{Alias: 4}},
	}
	var got []uint64
	for _, p := range sel.Outputs() {
		got = append(got, uint64(p.Alias))
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, got)

	p, ok := sel.Output(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), uint64(p.Alias))
}
