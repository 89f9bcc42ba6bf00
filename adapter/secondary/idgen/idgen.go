// Package idgen implements secondary.IDGenerator over google/uuid and a
// process-local atomic counter.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Generator is the default secondary.IDGenerator.
type Generator struct {
	seq atomic.Uint64
}

// New builds an idgen.Generator.
func New() secondary.IDGenerator {
	return &Generator{}
}

// UUID returns a random (v4) UUID string.
func (g *Generator) UUID() string {
	return uuid.NewString()
}

// Sequential returns prefix followed by a monotonically increasing
// counter, zero-padded to length digits. The counter is process-local: it
// resets on restart and is not safe to rely on for global ordering across
// instances.
func (g *Generator) Sequential(prefix string, length int) string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%s%0*d", prefix, length, n)
}
