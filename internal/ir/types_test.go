package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSQLType(t *testing.T) {
	assert.Equal(t, SQLInteger, KindInt.SQLType())
	assert.Equal(t, SQLInteger, KindBool.SQLType())
	assert.Equal(t, SQLInteger, KindID.SQLType())
	assert.Equal(t, SQLReal, KindFloat.SQLType())
	assert.Equal(t, SQLText, KindText.SQLType())
	assert.Equal(t, "", KindInvalid.SQLType())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "int", Int.String())
	assert.Equal(t, "text?", Text.Null().String())
	assert.Equal(t, "id(author)", ID("author").String())
	assert.Equal(t, "id", Type{Kind: KindID}.String())
}

func TestSame(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"equal scalars", Int, Int, true},
		{"kind differs", Int, Float, false},
		{"nullability differs", Text, Text.Null(), false},
		{"same table", ID("author"), ID("author"), true},
		{"different table", ID("author"), ID("book"), false},
		{"unknown table", ID("author"), Type{Kind: KindID}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Same(tt.a, tt.b))
		})
	}
}

func TestAssignable(t *testing.T) {
	assert.True(t, Assignable(Int.Null(), Int), "non-null into nullable")
	assert.False(t, Assignable(Int, Int.Null()), "nullable into non-null")
	assert.True(t, Assignable(Int, Bool), "bool stored as integer")
	assert.False(t, Assignable(Text, Int))
	assert.True(t, Assignable(ID("author"), ID("author")))
	assert.False(t, Assignable(ID("author"), ID("book")))
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{"b": Integer(1), "a": Integer(2), "B": Integer(3)}
	assert.Equal(t, []string{"B", "a", "b"}, obj.SortedKeys())
}
