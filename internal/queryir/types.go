package queryir

import "github.com/roach88/relq/internal/alias"

// Stmt is any statement the compiler can render.
type Stmt interface {
	stmtNode()
}

// Source is one entry of a Select's FROM list.
type Source interface {
	sourceNode()
	SourceAlias() alias.Alias
}

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// Projection names one output of a Select.
type Projection struct {
	Alias alias.Alias
	Expr  Expr
}

// Select is one SELECT statement.
//
// Output order is Group, Aggregates, Sort, Columns. Group keys are grouped
// on and ordered ascending; sort keys are ordered ascending after them.
// Within each group the row kept is the one with the smallest first sort
// key.
type Select struct {
	Sources    []Source
	Where      []Expr
	Group      []Projection
	Aggregates []Projection
	Sort       []Projection
	Columns    []Projection
}

func (*Select) stmtNode() {}

// Outputs returns every projection in output order.
func (s *Select) Outputs() []Projection {
	out := make([]Projection, 0, len(s.Group)+len(s.Aggregates)+len(s.Sort)+len(s.Columns))
	out = append(out, s.Group...)
	out = append(out, s.Aggregates...)
	out = append(out, s.Sort...)
	out = append(out, s.Columns...)
	return out
}

// Leading is the number of outputs before Columns. A top-level reader
// skips them; an INSERT ... SELECT writes only Columns.
func (s *Select) Leading() int {
	return len(s.Group) + len(s.Aggregates) + len(s.Sort)
}

// Output finds the projection exported under a.
func (s *Select) Output(a alias.Alias) (Projection, bool) {
	for _, p := range s.Outputs() {
		if p.Alias == a {
			return p, true
		}
	}
	return Projection{}, false
}

// Table reads a physical table. The first source of a Select is the FROM
// item; later ones are inner joined on On, or on TRUE when On is nil.
type Table struct {
	Name  string
	Alias alias.Alias
	On    Expr
}

func (*Table) sourceNode() {}

// SourceAlias implements Source.
func (t *Table) SourceAlias() alias.Alias { return t.Alias }

// Nested joins a correlated sub-select. Its filters may read sources of the
// enclosing Select that precede it; the enclosing Select reads its outputs
// through Column{Source: Alias, Field: Generated(...)}.
type Nested struct {
	Select *Select
	Alias  alias.Alias
}

func (*Nested) sourceNode() {}

// SourceAlias implements Source.
func (n *Nested) SourceAlias() alias.Alias { return n.Alias }

// Field identifies a column of a source: a physical column name, or the
// alias of an output exported by a nested select.
type Field struct {
	Name  string
	Alias alias.Alias
}

// Named returns the field for a physical column.
func Named(name string) Field { return Field{Name: name} }

// Generated returns the field for a nested select output.
func Generated(a alias.Alias) Field { return Field{Alias: a} }

// IsGenerated reports whether f names a nested output.
func (f Field) IsGenerated() bool { return !f.Alias.IsZero() }

func (f Field) String() string {
	if f.IsGenerated() {
		return f.Alias.String()
	}
	return f.Name
}

// Column reads Field from the source aliased Source.
type Column struct {
	Source alias.Alias
	Field  Field
}

func (Column) exprNode() {}

// Literal is a bound parameter. A nil Value binds NULL.
type Literal struct {
	Value any
}

func (Literal) exprNode() {}

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpLt  BinaryOp = "<"
	OpEq  BinaryOp = "="
	OpAnd BinaryOp = "AND"
)

// Binary applies Op to Left and Right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (Binary) exprNode() {}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

func (Not) exprNode() {}

// IsNotNull tests Expr against NULL.
type IsNotNull struct {
	Expr Expr
}

func (IsNotNull) exprNode() {}

// IfNull returns Expr, or Default when Expr is NULL.
type IfNull struct {
	Expr    Expr
	Default Expr
}

func (IfNull) exprNode() {}

// CastFloat converts an integer expression to floating point.
type CastFloat struct {
	Expr Expr
}

func (CastFloat) exprNode() {}

// AggFunc names an aggregate function.
type AggFunc string

const (
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

// Aggregate applies Func over the rows of its Select. A nil Arg is only
// valid for COUNT and means COUNT(*).
type Aggregate struct {
	Func     AggFunc
	Arg      Expr
	Distinct bool
}

func (Aggregate) exprNode() {}

// Insert writes rows into Table. Exactly one of Values (a single row) and
// Query is set. Columns pairs positionally with Values or with the
// outputs of Query.
type Insert struct {
	Table               string
	Columns             []string
	Values              []Expr
	Query               *Select
	OnConflictDoNothing bool
}

func (*Insert) stmtNode() {}

// ColumnDef is one column of a CreateTable.
type ColumnDef struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	// References names the table whose "id" this column points at.
	References string
}

// UniqueDef is a named uniqueness constraint.
type UniqueDef struct {
	Name    string
	Columns []string
}

// CreateTable creates Name with Columns in order.
type CreateTable struct {
	Name    string
	Columns []ColumnDef
	Uniques []UniqueDef
	Strict  bool
}

func (*CreateTable) stmtNode() {}

// DropTable drops Name.
type DropTable struct {
	Name string
}

func (*DropTable) stmtNode() {}

// RenameTable renames From to To.
type RenameTable struct {
	From string
	To   string
}

func (*RenameTable) stmtNode() {}
