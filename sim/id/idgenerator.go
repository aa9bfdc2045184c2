// Package id hands out identifiers for simulation objects and runs.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	Generate() string
}

// NewIDGenerator returns a generator whose first emitted ID is "1". IDs from
// the same generator are deterministic, so runs with the same seed produce
// the same IDs.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

// RunID returns a globally unique identifier for one simulation run. It is
// used to name output files.
func RunID() string {
	return xid.New().String()
}
