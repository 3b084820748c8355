package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDs_Sequential(t *testing.T) {
	gen := NewFixedIDs("test")

	assert.Equal(t, "test-0001", gen.Generate())
	assert.Equal(t, "test-0002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "test-0001", gen.Generate())
}

func TestFixedIDs_EmptyPrefixDefault(t *testing.T) {
	assert.Equal(t, "batch-0001", NewFixedIDs("").Generate())
}

func TestFixedIDs_ThreadSafe(t *testing.T) {
	gen := NewFixedIDs("t")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, dup := seen.LoadOrStore(gen.Generate(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
}

func TestClock(t *testing.T) {
	c := NewClock(time.Time{})
	c.Step = time.Minute

	first := c.Now()
	assert.Equal(t, "2024-01-01T00:00:00Z", first.Format(time.RFC3339))
	assert.Equal(t, first.Add(time.Minute), c.Now())
}
