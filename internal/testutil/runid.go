package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialRunIDs generates run IDs "<prefix>-0001", "<prefix>-0002", ...
//
// The same scenario with a fresh SequentialRunIDs produces byte-identical
// run logs, which golden snapshots depend on. Unlike engine.FixedGenerator
// it never runs out.
//
// Thread-safety: SequentialRunIDs is safe for concurrent use.
type SequentialRunIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialRunIDs creates a generator. If prefix is empty, "run" is used.
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements engine.RunIDGenerator interface.
func (g *SequentialRunIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
