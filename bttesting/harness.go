package bttesting

import (
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"
)

// TestContext bundles a logger and a fresh MemNamespace for one test,
// mirroring the shape of a per-test fixture without needing a real storage
// emulator.
type TestContext struct {
	T   *testing.T
	Log logger.Logger
	NS  *MemNamespace
}

// NewTestContext allocates a zero-filled in-memory namespace of the given
// size and wires up a logger at the given level ("NOOP" silences output).
func NewTestContext(t *testing.T, level string, size int64) TestContext {
	logger.New(level)
	return TestContext{
		T:   t,
		Log: logger.Sugar.WithServiceName(t.Name()),
		NS:  NewMemNamespace(size),
	}
}

// RequireWriteCount asserts the namespace has accepted exactly n durable
// writes so far, useful for pinning a fault injection point precisely.
func (c TestContext) RequireWriteCount(n int) {
	require.Equal(c.T, n, c.NS.WriteCount())
}
