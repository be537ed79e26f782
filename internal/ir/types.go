package ir

import "fmt"

// Kind is the scalar category of an expression or column.
type Kind uint8

const (
	// KindInvalid is the zero Kind. Expressions carrying it failed construction.
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	// KindID is a row identifier. Type.Table names the table it points into.
	KindID
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindFloat:   "float",
	KindText:    "text",
	KindBool:    "bool",
	KindID:      "id",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SQL storage classes used in STRICT tables.
const (
	SQLInteger = "INTEGER"
	SQLReal    = "REAL"
	SQLText    = "TEXT"
)

// SQLType returns the storage class used to persist values of this kind.
func (k Kind) SQLType() string {
	switch k {
	case KindFloat:
		return SQLReal
	case KindText:
		return SQLText
	case KindInt, KindBool, KindID:
		return SQLInteger
	default:
		return ""
	}
}

// Type is the semantic type tag attached to every expression node.
type Type struct {
	Kind     Kind
	Nullable bool
	// Table is set for KindID. Empty means "some table, unknown here".
	Table string
}

// Int, Float, Text and Bool are the non-nullable scalar tags.
var (
	Int   = Type{Kind: KindInt}
	Float = Type{Kind: KindFloat}
	Text  = Type{Kind: KindText}
	Bool  = Type{Kind: KindBool}
)

// ID returns the identifier tag for rows of table.
func ID(table string) Type {
	return Type{Kind: KindID, Table: table}
}

// Null returns t marked nullable.
func (t Type) Null() Type {
	t.Nullable = true
	return t
}

// NotNull returns t with nullability stripped.
func (t Type) NotNull() Type {
	t.Nullable = false
	return t
}

// Valid reports whether t describes a usable type.
func (t Type) Valid() bool {
	return t.Kind != KindInvalid
}

func (t Type) String() string {
	s := t.Kind.String()
	if t.Kind == KindID && t.Table != "" {
		s = fmt.Sprintf("id(%s)", t.Table)
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

// Same reports whether a and b are the same type. Identifier tags with an
// unknown table match any identifier tag of the same nullability.
func Same(a, b Type) bool {
	if a.Kind != b.Kind || a.Nullable != b.Nullable {
		return false
	}
	if a.Kind == KindID && a.Table != "" && b.Table != "" {
		return a.Table == b.Table
	}
	return true
}

// Assignable reports whether a value tagged v may be stored in a column
// tagged col. Non-null values fit nullable columns; booleans are stored as
// integers.
func Assignable(col, v Type) bool {
	if v.Nullable && !col.Nullable {
		return false
	}
	if col.Kind == v.Kind {
		if col.Kind == KindID && col.Table != "" && v.Table != "" {
			return col.Table == v.Table
		}
		return true
	}
	return col.Kind == KindInt && v.Kind == KindBool
}
