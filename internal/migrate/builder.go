package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/relq/internal/alias"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

type stepKind int

const (
	stepAlter stepKind = iota
	stepCreate
	stepDrop
)

func (k stepKind) String() string {
	switch k {
	case stepAlter:
		return "migrate table"
	case stepCreate:
		return "create table"
	case stepDrop:
		return "drop table"
	default:
		return "unknown step"
	}
}

// step is one recorded table change. fill is nil for tables created
// empty.
type step struct {
	kind  stepKind
	table string
	tmp   string
	fill  *queryir.Insert
}

// Builder records the table changes of one migration. Values for new
// rows are read from the previous schema; nothing runs until the
// migration function returns.
type Builder struct {
	run     *run
	from    *schema.Schema
	to      *schema.Schema
	aliases *alias.Scope
	sess    *query.Session
	logger  *slog.Logger
	steps   []*step
	touched map[string]bool
	err     error
}

func newBuilder(r *run, from, to *schema.Schema, logger *slog.Logger) *Builder {
	return &Builder{
		run:     r,
		from:    from,
		to:      to,
		aliases: alias.NewScope(),
		sess:    query.NewSession(r.tx, from, query.WithLogger(logger)),
		logger:  logger,
		touched: make(map[string]bool),
	}
}

// From returns the schema being migrated away from.
func (b *Builder) From() *schema.Schema { return b.from }

// To returns the schema being migrated to.
func (b *Builder) To() *schema.Schema { return b.to }

// Session reads and writes the database as it is before any recorded step
// runs.
func (b *Builder) Session() *query.Session { return b.sess }

// Err returns the first error recorded by a step.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

func (b *Builder) claim(table string) bool {
	if b.touched[table] {
		b.fail("table %q changed by more than one step", table)
		return false
	}
	b.touched[table] = true
	return true
}

// MigrateTable rebuilds table, which exists in both schemas. Every row
// keeps its id; fn sets the remaining columns of the new definition from
// the old row.
func (b *Builder) MigrateTable(table string, fn func(old *query.Row, w *query.Writer)) {
	if b.err != nil {
		return
	}
	if _, ok := b.from.Lookup(table); !ok {
		b.fail("migrate table %q: not in schema version %d", table, b.from.Version)
		return
	}
	if !b.claim(table) {
		return
	}
	b.fill(stepAlter, table, table, func(old *query.Row, w *query.Writer) {
		w.Set(schema.IDColumn, old.ID())
		fn(old, w)
	})
}

// CreateFrom creates table, which is new in the target schema, with one
// row for every row of source in the old schema. New rows get fresh ids.
func (b *Builder) CreateFrom(table, source string, fn func(old *query.Row, w *query.Writer)) {
	if b.err != nil {
		return
	}
	if _, ok := b.from.Lookup(table); ok {
		b.fail("create table %q: already in schema version %d", table, b.from.Version)
		return
	}
	if _, ok := b.from.Lookup(source); !ok {
		b.fail("create table %q: source %q not in schema version %d", table, source, b.from.Version)
		return
	}
	if !b.claim(table) {
		return
	}
	b.fill(stepCreate, table, source, fn)
}

// NewTable creates table empty. Tables that are new in the target schema
// and have no step are created this way automatically.
func (b *Builder) NewTable(table string) {
	if b.err != nil {
		return
	}
	if _, ok := b.to.Lookup(table); !ok {
		b.fail("new table %q: not in schema version %d", table, b.to.Version)
		return
	}
	if !b.claim(table) {
		return
	}
	b.steps = append(b.steps, &step{kind: stepCreate, table: table, tmp: b.aliases.TempTable()})
}

// DropTable removes table, which is absent from the target schema.
func (b *Builder) DropTable(table string) {
	if b.err != nil {
		return
	}
	if _, ok := b.from.Lookup(table); !ok {
		b.fail("drop table %q: not in schema version %d", table, b.from.Version)
		return
	}
	if _, ok := b.to.Lookup(table); ok {
		b.fail("drop table %q: still in schema version %d", table, b.to.Version)
		return
	}
	if !b.claim(table) {
		return
	}
	b.steps = append(b.steps, &step{kind: stepDrop, table: table})
}

func (b *Builder) fill(kind stepKind, table, source string, fn func(old *query.Row, w *query.Writer)) {
	target, ok := b.to.Lookup(table)
	if !ok {
		b.fail("%s %q: not in schema version %d", kind, table, b.to.Version)
		return
	}

	tmp := b.aliases.TempTable()
	p := query.NewPlan(b.from, query.WithAliases(b.aliases))
	old := p.From(source)
	w := query.NewWriter(target, p)
	fn(old, w)

	ins, err := query.InsertSelect(tmp, p, w, false)
	if err != nil {
		b.fail("%s %q: %w", kind, table, err)
		return
	}
	b.steps = append(b.steps, &step{kind: kind, table: table, tmp: tmp, fill: ins})
}

// apply runs the recorded steps. All new tables are built under temporary
// names first, so every fill reads the old data. Old tables are dropped
// next and the new ones renamed into place last.
func (b *Builder) apply(ctx context.Context) error {
	if b.err != nil {
		return execError(b.to.Version, "build migration", b.err)
	}
	for _, name := range b.to.TableNames() {
		if _, ok := b.from.Lookup(name); ok || b.touched[name] {
			continue
		}
		b.NewTable(name)
	}

	for _, s := range b.steps {
		if s.kind == stepDrop {
			continue
		}
		t, _ := b.to.Lookup(s.table)
		if err := b.exec(ctx, t.CreateStmt(s.tmp)); err != nil {
			return err
		}
		if s.fill != nil {
			res, err := b.sess.Exec(ctx, s.fill)
			if err != nil {
				return execError(b.to.Version, s.kind.String()+" "+s.table, err)
			}
			n, _ := res.RowsAffected()
			b.logger.Info("table filled", "step", s.kind.String(), "table", s.table, "rows", n)
		} else {
			b.logger.Info("table created", "table", s.table)
		}
	}

	for _, s := range b.steps {
		if s.kind == stepCreate {
			continue
		}
		if err := b.exec(ctx, &queryir.DropTable{Name: s.table}); err != nil {
			return err
		}
		if s.kind == stepDrop {
			b.logger.Info("table dropped", "table", s.table)
		}
	}

	for _, s := range b.steps {
		if s.kind == stepDrop {
			continue
		}
		if err := b.exec(ctx, &queryir.RenameTable{From: s.tmp, To: s.table}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) exec(ctx context.Context, stmt queryir.Stmt) error {
	if _, err := b.sess.Exec(ctx, stmt); err != nil {
		return execError(b.to.Version, "apply migration", err)
	}
	return nil
}
