// Package alias issues the generated names used for table aliases, nested
// plan outputs and temporary tables in emitted SQL.
//
// A Scope is created per top-level statement or per migration. Every alias
// taken from one scope is distinct, so two sources that reach the same
// physical table never collide. Scopes are independent of each other: two
// statements compiled concurrently may both contain "_1".
package alias

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// Alias is an opaque generated identity. The zero value means "no alias".
type Alias uint64

// String renders the alias the way it appears in SQL, e.g. "_3".
func (a Alias) String() string {
	return "_" + strconv.FormatUint(uint64(a), 10)
}

// IsZero reports whether a was never allocated.
func (a Alias) IsZero() bool {
	return a == 0
}

// Scope hands out aliases for one statement or migration.
//
// Safe for concurrent use; plans built on separate goroutines may share a
// scope and still receive distinct values.
type Scope struct {
	seq atomic.Uint64
}

// NewScope creates a scope whose first alias is _1.
func NewScope() *Scope {
	return &Scope{}
}

// NewScopeAt creates a scope that continues after start.
func NewScopeAt(start uint64) *Scope {
	s := &Scope{}
	s.seq.Store(start)
	return s
}

// Next allocates a fresh alias.
func (s *Scope) Next() Alias {
	return Alias(s.seq.Add(1))
}

// Current returns the last allocated value without allocating.
func (s *Scope) Current() uint64 {
	return s.seq.Load()
}

// TempTable allocates a table name for a table that is built and later
// renamed into place.
func (s *Scope) TempTable() string {
	return fmt.Sprintf("_tmp%s", s.Next())
}
