// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"strconv"
	"sync"
)

// DefaultPrefix is used when a SequenceGenerator is created without one.
const DefaultPrefix = "generated"

// SequenceGenerator produces predictable primary keys: "<prefix>-1",
// "<prefix>-2", and so on. The same scenario run twice yields the same keys,
// which keeps rendered statements stable for golden comparison.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceGenerator creates a generator whose first key is "<prefix>-1".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next key.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.prefix + "-" + strconv.FormatInt(g.seq, 10)
}

// Count returns how many keys have been generated.
func (g *SequenceGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next key is "<prefix>-1" again.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
