package testutil

import (
	"fmt"
	"sync"
)

// FixedRunID generates the same migration run id every time.
//
// This keeps migration logs byte-identical across test runs.
// If id is empty, the generator returns "test-run-default".
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
func FixedRunID(id string) func() string {
	if id == "" {
		id = "test-run-default"
	}
	return func() string { return id }
}

// SequentialRunIDs hands out run ids "test-run-0001", "test-run-0002", ...
//
// Unlike uuid-based ids, a SequentialRunIDs can be reset so the same
// scenario produces the same ids when run twice.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialRunIDs creates a generator whose first id ends in 0001.
func NewSequentialRunIDs() *SequentialRunIDs {
	return &SequentialRunIDs{}
}

// Next increments the counter and returns the next run id.
func (g *SequentialRunIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("test-run-%04d", g.seq)
}

// Count returns how many ids were handed out since the last Reset.
func (g *SequentialRunIDs) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next call to Next returns
// "test-run-0001".
func (g *SequentialRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
