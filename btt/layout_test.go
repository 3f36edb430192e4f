package btt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// withTestGeometry overrides the production-sized geometry constants with
// the small values the testable-properties seed scenarios use, and registers
// a t.Cleanup that restores the originals so other tests aren't affected
// (these are package vars, not consts, exactly so this override is
// possible).
func withTestGeometry(t *testing.T) {
	t.Helper()
	origMax, origMin := ArenaMax, ArenaMin
	ArenaMax = 16 << 20
	ArenaMin = 1 << 20
	t.Cleanup(func() {
		ArenaMax, ArenaMin = origMax, origMin
	})
}

func TestComputeGeometrySingleArena(t *testing.T) {
	withTestGeometry(t)

	narena, geoms, err := computeGeometry(8<<20, 512, 4)
	require.NoError(t, err)
	require.Equal(t, 1, narena)
	require.Len(t, geoms, 1)

	g := geoms[0]
	require.Greater(t, g.externalNLBA, uint32(0))
	require.Equal(t, g.internalNLBA, g.externalNLBA+4)
	require.Equal(t, uint32(512), g.internalLBASize)
	require.Less(t, g.mapoff, g.flogoff)
	require.Less(t, g.flogoff, g.infooff)
	require.Less(t, g.dataoff, g.mapoff)
}

func TestComputeGeometryMultipleArenas(t *testing.T) {
	withTestGeometry(t)

	narena, geoms, err := computeGeometry(40<<20, 512, 4)
	require.NoError(t, err)
	require.Equal(t, 3, narena) // 2 full 16MiB arenas + an 8MiB remainder >= ArenaMin
	require.Len(t, geoms, 3)
	require.Equal(t, int64(16<<20), geoms[0].size)
	require.Equal(t, int64(16<<20), geoms[1].size)
	require.Equal(t, int64(8<<20), geoms[2].size)
}

func TestComputeGeometryRejectsTooSmall(t *testing.T) {
	withTestGeometry(t)

	_, _, err := computeGeometry(1<<10, 512, 4)
	require.ErrorIs(t, err, ErrRawsizeTooSmall)
}

func TestComputeGeometryRejectsZeroLbasize(t *testing.T) {
	withTestGeometry(t)

	_, _, err := computeGeometry(8<<20, 0, 4)
	require.ErrorIs(t, err, ErrLbasizeZero)
}
