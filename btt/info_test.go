package btt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoRoundTrip(t *testing.T) {
	inf := info{
		parentUUID:      uuid.New(),
		flags:           ErrorMask,
		major:           MajorVersion,
		minor:           minorVersion,
		externalLBASize: 512,
		externalNLBA:    1000,
		internalLBASize: 512,
		internalNLBA:    1004,
		nfree:           4,
		infosize:        infoSize,
		nextoff:         1 << 20,
		dataoff:         infoSize,
		mapoff:          1 << 18,
		flogoff:         1 << 19,
		infooff:         (1 << 20) - infoSize,
	}

	encoded := encodeInfo(inf)
	require.Len(t, encoded, infoSize)

	decoded, ok := decodeInfo(encoded)
	require.True(t, ok)

	assert.Equal(t, inf.parentUUID, decoded.parentUUID)
	assert.Equal(t, inf.flags, decoded.flags)
	assert.Equal(t, inf.major, decoded.major)
	assert.Equal(t, inf.externalNLBA, decoded.externalNLBA)
	assert.Equal(t, inf.internalNLBA, decoded.internalNLBA)
	assert.Equal(t, inf.nfree, decoded.nfree)
	assert.Equal(t, inf.nextoff, decoded.nextoff)
	assert.Equal(t, inf.dataoff, decoded.dataoff)
	assert.Equal(t, inf.mapoff, decoded.mapoff)
	assert.Equal(t, inf.flogoff, decoded.flogoff)
	assert.Equal(t, inf.infooff, decoded.infooff)
}

func TestDecodeInfoRejectsBadSignature(t *testing.T) {
	buf := encodeInfo(info{major: MajorVersion})
	buf[0] = 'X'
	_, ok := decodeInfo(buf)
	assert.False(t, ok)
}

func TestDecodeInfoRejectsZeroMajor(t *testing.T) {
	buf := encodeInfo(info{major: MajorVersion})
	buf[36], buf[37] = 0, 0
	_, ok := decodeInfo(buf)
	assert.False(t, ok)
}

func TestDecodeInfoRejectsCorruptChecksum(t *testing.T) {
	buf := encodeInfo(info{major: MajorVersion, externalNLBA: 7})
	buf[50] ^= 0xFF
	_, ok := decodeInfo(buf)
	assert.False(t, ok)
}

func TestDecodeInfoShortBuffer(t *testing.T) {
	_, ok := decodeInfo(make([]byte, infoSize-1))
	assert.False(t, ok)
}
