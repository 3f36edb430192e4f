package btt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// sig is the 16-byte signature stamped at the front of every info block.
// The declared string is 14 characters plus the two NUL bytes already in
// the literal, matching BTTINFO_SIG_LEN.
var sig = [16]byte{'B', 'T', 'T', '_', 'A', 'R', 'E', 'N', 'A', '_', 'I', 'N', 'F', 'O', 0, 0}

// MajorVersion is the only major version this package writes or accepts.
const MajorVersion = uint16(1)

const minorVersion = uint16(0)

// infoSize is the fixed wire size of an info block: sig(16) + uuid(16) +
// flags(4) + major(2) + minor(2) + external_lbasize(4) + external_nlba(4) +
// internal_lbasize(4) + internal_nlba(4) + nfree(4) + infosize(4) +
// nextoff(8) + dataoff(8) + mapoff(8) + flogoff(8) + infooff(8) +
// checksum(8).
const infoSize = 112

const checksumOffset = infoSize - 8

// ErrorMask is the info-block flags bit that disables further writes to an
// arena once a consistency fault has been detected in it.
const ErrorMask uint32 = 1 << 0

// info is the decoded, host-order representation of an arena's info block.
// All offset fields are arena-relative on media; encodeInfo/decodeInfo
// convert to and from the little-endian wire format.
type info struct {
	parentUUID      uuid.UUID
	flags           uint32
	major           uint16
	minor           uint16
	externalLBASize uint32
	externalNLBA    uint32
	internalLBASize uint32
	internalNLBA    uint32
	nfree           uint32
	infosize        uint32
	nextoff         uint64
	dataoff         uint64
	mapoff          uint64
	flogoff         uint64
	infooff         uint64
	checksum        uint64
}

// encodeInfo serializes inf to its little-endian wire format, computing and
// filling in the checksum as the final step (the checksum itself covers the
// rest of the block with the checksum field zeroed).
func encodeInfo(inf info) []byte {
	buf := make([]byte, infoSize)
	copy(buf[0:16], sig[:])
	copy(buf[16:32], inf.parentUUID[:])
	binary.LittleEndian.PutUint32(buf[32:36], inf.flags)
	binary.LittleEndian.PutUint16(buf[36:38], inf.major)
	binary.LittleEndian.PutUint16(buf[38:40], inf.minor)
	binary.LittleEndian.PutUint32(buf[40:44], inf.externalLBASize)
	binary.LittleEndian.PutUint32(buf[44:48], inf.externalNLBA)
	binary.LittleEndian.PutUint32(buf[48:52], inf.internalLBASize)
	binary.LittleEndian.PutUint32(buf[52:56], inf.internalNLBA)
	binary.LittleEndian.PutUint32(buf[56:60], inf.nfree)
	binary.LittleEndian.PutUint32(buf[60:64], inf.infosize)
	binary.LittleEndian.PutUint64(buf[64:72], inf.nextoff)
	binary.LittleEndian.PutUint64(buf[72:80], inf.dataoff)
	binary.LittleEndian.PutUint64(buf[80:88], inf.mapoff)
	binary.LittleEndian.PutUint64(buf[88:96], inf.flogoff)
	binary.LittleEndian.PutUint64(buf[96:104], inf.infooff)
	// checksum field (buf[104:112]) stays zero while we checksum the rest.
	binary.LittleEndian.PutUint64(buf[checksumOffset:infoSize], fletcher64(buf))
	return buf
}

// decodeInfo validates sig/major/checksum and, if valid, decodes the rest of
// the fields to host order. ok is false for any kind of invalid info block
// (bad signature, major 0, bad checksum) -- per §7, an invalid info block is
// never a hard error, only a signal to treat the namespace as unlaid-out.
func decodeInfo(buf []byte) (inf info, ok bool) {
	if len(buf) < infoSize {
		return info{}, false
	}
	if [16]byte(buf[0:16]) != sig {
		return info{}, false
	}
	major := binary.LittleEndian.Uint16(buf[36:38])
	if major == 0 {
		return info{}, false
	}

	checksummed := make([]byte, infoSize)
	copy(checksummed, buf[:infoSize])
	wantChecksum := binary.LittleEndian.Uint64(checksummed[checksumOffset:infoSize])
	clear(checksummed[checksumOffset:infoSize])
	if fletcher64(checksummed) != wantChecksum {
		return info{}, false
	}

	inf.parentUUID = uuid.UUID(buf[16:32])
	inf.flags = binary.LittleEndian.Uint32(buf[32:36])
	inf.major = major
	inf.minor = binary.LittleEndian.Uint16(buf[38:40])
	inf.externalLBASize = binary.LittleEndian.Uint32(buf[40:44])
	inf.externalNLBA = binary.LittleEndian.Uint32(buf[44:48])
	inf.internalLBASize = binary.LittleEndian.Uint32(buf[48:52])
	inf.internalNLBA = binary.LittleEndian.Uint32(buf[52:56])
	inf.nfree = binary.LittleEndian.Uint32(buf[56:60])
	inf.infosize = binary.LittleEndian.Uint32(buf[60:64])
	inf.nextoff = binary.LittleEndian.Uint64(buf[64:72])
	inf.dataoff = binary.LittleEndian.Uint64(buf[72:80])
	inf.mapoff = binary.LittleEndian.Uint64(buf[80:88])
	inf.flogoff = binary.LittleEndian.Uint64(buf[88:96])
	inf.infooff = binary.LittleEndian.Uint64(buf[96:104])
	inf.checksum = wantChecksum
	return inf, true
}

// fletcher64 is a Fletcher-style 64-bit checksum over 32-bit little-endian
// words: two running 32-bit sums, combined into the high and low halves of
// the result. No third-party library in the example pack implements this
// exact bit-for-bit format (the closest relatives, crc32/xxhash, produce
// different wire values), and the on-media layout requires byte-for-byte
// compatibility with it, so this is one of the few places the core reaches
// into encoding/binary directly instead of an ecosystem checksum package.
func fletcher64(data []byte) uint64 {
	var lo, hi uint32
	for i := 0; i+4 <= len(data); i += 4 {
		lo += binary.LittleEndian.Uint32(data[i : i+4])
		hi += lo
	}
	return uint64(hi)<<32 | uint64(lo)
}
