package testutil

import (
	"fmt"
	"sync"
)

// SequentialTxIDs generates "<prefix>-0001", "<prefix>-0002", ...
//
// The same scenario with the same generator produces byte-identical
// journals, which golden traces rely on. It implements
// pledge.TxIDGenerator and never runs out, unlike pledge.FixedGenerator.
type SequentialTxIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTxIDs creates a generator. An empty prefix becomes "tx".
func NewSequentialTxIDs(prefix string) *SequentialTxIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialTxIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialTxIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
