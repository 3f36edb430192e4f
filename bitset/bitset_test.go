package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	b := New(17)
	assert.False(t, b.Get(0))
	assert.False(t, b.Set(0))
	assert.True(t, b.Get(0))
	assert.True(t, b.Set(0))
}

func TestAllSetDetectsGap(t *testing.T) {
	b := New(10)
	for i := 0; i < 10; i++ {
		if i == 5 {
			continue
		}
		b.Set(i)
	}
	ok, first := b.AllSet()
	require.False(t, ok)
	require.Equal(t, 5, first)
}

func TestAllSetTrueWhenFull(t *testing.T) {
	b := New(8)
	for i := 0; i < 8; i++ {
		b.Set(i)
	}
	ok, _ := b.AllSet()
	assert.True(t, ok)
}

func TestCount(t *testing.T) {
	b := New(100)
	for i := 0; i < 100; i += 2 {
		b.Set(i)
	}
	assert.Equal(t, 50, b.Count())
}

func TestBytesFor(t *testing.T) {
	assert.Equal(t, 0, bytesFor(0))
	assert.Equal(t, 1, bytesFor(1))
	assert.Equal(t, 1, bytesFor(8))
	assert.Equal(t, 2, bytesFor(9))
}
