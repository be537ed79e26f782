package migrate

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/schema"
)

// Automatic is a migration function for changes that need no data
// decisions. Tables new in the target are created empty and tables it
// removes are dropped. Changed tables are rebuilt, copying every column
// whose old type fits the new one; new nullable columns start as NULL.
// A new NOT NULL column has no value to copy and is an error.
func Automatic(b *Builder) error {
	for _, name := range b.To().TableNames() {
		to, _ := b.To().Lookup(name)
		from, ok := b.From().Lookup(name)
		if !ok {
			b.NewTable(name)
			continue
		}
		if sameTable(from, to) {
			continue
		}
		if err := checkCopyable(from, to); err != nil {
			return err
		}
		b.MigrateTable(name, func(old *query.Row, w *query.Writer) {
			for _, col := range to.Columns {
				if prev, ok := from.Column(col.Name); ok && ir.Assignable(col.IRType(), prev.IRType()) {
					w.Set(col.Name, old.Column(col.Name))
				} else {
					w.SetNull(col.Name)
				}
			}
		})
	}
	for _, name := range b.From().TableNames() {
		if _, ok := b.To().Lookup(name); !ok {
			b.DropTable(name)
		}
	}
	return b.Err()
}

func sameTable(a, b *schema.Table) bool {
	ha, errA := a.Hash()
	hb, errB := b.Hash()
	return errA == nil && errB == nil && ha == hb
}

func checkCopyable(from, to *schema.Table) error {
	for _, col := range to.Columns {
		prev, ok := from.Column(col.Name)
		if ok && ir.Assignable(col.IRType(), prev.IRType()) {
			continue
		}
		if !col.Nullable {
			return fmt.Errorf("table %q: column %q needs a value from the migration", to.Name, col.Name)
		}
	}
	return nil
}
