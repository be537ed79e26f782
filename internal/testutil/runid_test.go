package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunID(t *testing.T) {
	gen := FixedRunID("run-a")
	assert.Equal(t, "run-a", gen())
	assert.Equal(t, "run-a", gen())

	assert.Equal(t, "test-run-default", FixedRunID("")())
}

func TestSequentialRunIDs_Next(t *testing.T) {
	ids := NewSequentialRunIDs()
	assert.Equal(t, int64(0), ids.Count())

	assert.Equal(t, "test-run-0001", ids.Next())
	assert.Equal(t, "test-run-0002", ids.Next())
	assert.Equal(t, int64(2), ids.Count())
}

func TestSequentialRunIDs_Reset(t *testing.T) {
	ids := NewSequentialRunIDs()
	ids.Next()
	ids.Next()

	ids.Reset()
	assert.Equal(t, int64(0), ids.Count())
	assert.Equal(t, "test-run-0001", ids.Next())
}

func TestSequentialRunIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialRunIDs()
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := ids.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), ids.Count())
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	logger.Debug("visible with -v", "key", "value")
	assert.NotEmpty(t, TempDBPath(t))
}
