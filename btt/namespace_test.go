package btt_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codezyu/nvml/btt"
)

func TestFileNamespaceReadWriteRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "btt-ns-*.img")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(1<<20))

	ns := btt.NewFileNamespace(f)
	require.NoError(t, ns.Write(0, payload(0x42), 4096))

	buf := make([]byte, testLBASize)
	require.NoError(t, ns.Read(0, buf, 4096))
	assert.Equal(t, payload(0x42), buf)
}

func TestFileNamespaceMapSync(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "btt-ns-*.img")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(1<<20))

	ns := btt.NewFileNamespace(f)
	win, err := ns.Map(0, 128, 0)
	require.NoError(t, err)
	require.Len(t, win.Data, 128)

	for i := range win.Data {
		win.Data[i] = 0x7A
	}
	require.NoError(t, ns.Sync(0, win))

	buf := make([]byte, 128)
	require.NoError(t, ns.Read(0, buf, 0))
	for _, b := range buf {
		assert.Equal(t, byte(0x7A), b)
	}
}

func TestFileNamespaceEndToEndBTT(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "btt-ns-*.img")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(8<<20))

	withSmallArenas(t)
	ns := btt.NewFileNamespace(f)
	in, err := btt.New(ns, 8<<20, testLBASize)
	require.NoError(t, err)

	require.NoError(t, in.Write(0, 42, payload(0x9E)))

	buf := make([]byte, testLBASize)
	require.NoError(t, in.Read(0, 42, buf))
	assert.Equal(t, payload(0x9E), buf)
}
