package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/alias"
)

// ValidationError lists every rule a statement breaks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid statement: " + strings.Join(e.Problems, "; ")
}

// Validate checks alias uniqueness and scoping for stmt. It returns nil or
// a *ValidationError. Validate is pure.
func Validate(stmt Stmt) error {
	v := &validator{seen: make(map[alias.Alias]bool)}
	v.validateStmt(stmt)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

type validator struct {
	problems []string
	seen     map[alias.Alias]bool
}

// env is the set of sources visible at one point, innermost last.
type env struct {
	parent  *env
	sources map[alias.Alias]Source
}

func (e *env) lookup(a alias.Alias) (Source, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if s, ok := cur.sources[a]; ok {
			return s, true
		}
	}
	return nil, false
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) declare(a alias.Alias, what string) {
	if a.IsZero() {
		v.addProblem("%s has no alias", what)
		return
	}
	if v.seen[a] {
		v.addProblem("alias %s declared twice", a)
	}
	v.seen[a] = true
}

func (v *validator) validateStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case nil:
		v.addProblem("nil statement")
	case *Select:
		v.validateSelect(s, nil)
	case *Insert:
		v.validateInsert(s)
	case *CreateTable:
		if s.Name == "" {
			v.addProblem("create table without a name")
		}
		if len(s.Columns) == 0 {
			v.addProblem("table %q has no columns", s.Name)
		}
	case *DropTable:
		if s.Name == "" {
			v.addProblem("drop table without a name")
		}
	case *RenameTable:
		if s.From == "" || s.To == "" {
			v.addProblem("rename needs both names")
		}
	default:
		v.addProblem("unknown statement type %T", stmt)
	}
}

func (v *validator) validateInsert(ins *Insert) {
	if ins.Table == "" {
		v.addProblem("insert without a table")
	}
	switch {
	case ins.Query != nil && ins.Values != nil:
		v.addProblem("insert into %q has both values and a query", ins.Table)
	case ins.Query != nil:
		v.validateSelect(ins.Query, nil)
		if n := len(ins.Query.Columns); n != len(ins.Columns) {
			v.addProblem("insert into %q names %d columns but the query yields %d", ins.Table, len(ins.Columns), n)
		}
	default:
		if len(ins.Values) != len(ins.Columns) {
			v.addProblem("insert into %q names %d columns but has %d values", ins.Table, len(ins.Columns), len(ins.Values))
		}
		for _, e := range ins.Values {
			v.validateExpr(e, nil)
		}
	}
}

func (v *validator) validateSelect(sel *Select, parent *env) {
	scope := &env{parent: parent, sources: make(map[alias.Alias]Source)}
	for _, src := range sel.Sources {
		switch s := src.(type) {
		case *Table:
			v.declare(s.Alias, fmt.Sprintf("table %q", s.Name))
			scope.sources[s.Alias] = s
			if s.On != nil {
				v.validateExpr(s.On, scope)
			}
		case *Nested:
			if s.Select == nil {
				v.addProblem("nested source %s has no select", s.Alias)
				continue
			}
			// The nested select sees only what precedes it.
			v.validateSelect(s.Select, scope)
			v.declare(s.Alias, "nested select")
			scope.sources[s.Alias] = s
		default:
			v.addProblem("unknown source type %T", src)
		}
	}
	for _, w := range sel.Where {
		v.validateExpr(w, scope)
	}
	for _, p := range sel.Outputs() {
		v.declare(p.Alias, "projection")
		v.validateExpr(p.Expr, scope)
	}
}

func (v *validator) validateExpr(e Expr, scope *env) {
	switch x := e.(type) {
	case nil:
		v.addProblem("nil expression")
	case Column:
		src, ok := scope.lookup(x.Source)
		if !ok {
			v.addProblem("column %s.%s reads an alias that is not in scope", x.Source, x.Field)
			return
		}
		nested, isNested := src.(*Nested)
		switch {
		case x.Field.IsGenerated() && !isNested:
			v.addProblem("column %s.%s reads a generated field from a table", x.Source, x.Field)
		case !x.Field.IsGenerated() && isNested:
			v.addProblem("column %s.%s reads a named field from a nested select", x.Source, x.Field)
		case isNested:
			if _, ok := nested.Select.Output(x.Field.Alias); !ok {
				v.addProblem("nested select %s exports no %s", x.Source, x.Field)
			}
		}
	case Literal:
	case Binary:
		v.validateExpr(x.Left, scope)
		v.validateExpr(x.Right, scope)
	case Not:
		v.validateExpr(x.Expr, scope)
	case IsNotNull:
		v.validateExpr(x.Expr, scope)
	case IfNull:
		v.validateExpr(x.Expr, scope)
		v.validateExpr(x.Default, scope)
	case CastFloat:
		v.validateExpr(x.Expr, scope)
	case Aggregate:
		if x.Arg == nil {
			if x.Func != AggCount || x.Distinct {
				v.addProblem("%s needs an argument", x.Func)
			}
			return
		}
		v.validateExpr(x.Arg, scope)
	default:
		v.addProblem("unknown expression type %T", e)
	}
}
