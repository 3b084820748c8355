// Package testutil holds deterministic stand-ins for the ledger's sources
// of nondeterminism: batch ids and wall-clock time.
package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs generates sequential batch ids: "<prefix>-0001", "<prefix>-0002", ...
//
// The same scenario run with a fresh FixedIDs produces byte-identical event
// logs.
//
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDs returns a generator with the given prefix. An empty prefix
// selects "batch".
func NewFixedIDs(prefix string) *FixedIDs {
	if prefix == "" {
		prefix = "batch"
	}
	return &FixedIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *FixedIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
