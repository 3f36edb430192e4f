package btt

import (
	"encoding/binary"

	"github.com/datatrails/go-datatrails-common/logger"
)

// nseq maps a flog half's current sequence number to the next one in the
// cycle 1 -> 2 -> 3 -> 1. Index 0 is unused (seq 0 means "unwritten") but
// kept so nseq[a] is a direct lookup without an offset.
var nseq = [4]uint32{0, 2, 3, 1}

// flogRecordSize is the width of one {lba, old_map, new_map} write, i.e.
// everything but the trailing seq field.
const flogRecordSize = 12

// flogEntry is the host-order decoding of one half of a flog pair.
type flogEntry struct {
	preMapLBA uint32
	oldMap    uint32
	newMap    uint32
	seq       uint32
}

func decodeFlogEntry(buf []byte) flogEntry {
	return flogEntry{
		preMapLBA: binary.LittleEndian.Uint32(buf[0:4]),
		oldMap:    binary.LittleEndian.Uint32(buf[4:8]),
		newMap:    binary.LittleEndian.Uint32(buf[8:12]),
		seq:       binary.LittleEndian.Uint32(buf[12:16]),
	}
}

func encodeFlogEntry(buf []byte, e flogEntry) {
	binary.LittleEndian.PutUint32(buf[0:4], e.preMapLBA)
	binary.LittleEndian.PutUint32(buf[4:8], e.oldMap)
	binary.LittleEndian.PutUint32(buf[8:12], e.newMap)
	binary.LittleEndian.PutUint32(buf[12:16], e.seq)
}

// laneFlog is the runtime state of one lane's flog pair within an arena:
// the absolute offsets of each half, which half is current, and a cached
// host-order copy of the current entry.
type laneFlog struct {
	halfOff [2]int64 // namespace-absolute offset of each half
	current int       // index into halfOff of the current (live) half
	next    int       // index of the half the next update writes to
	entry   flogEntry // cached copy of the current half's entry
}

// flogUpdate performs the atomic remap commit described in §4.4: write the
// non-current half's {lba, old_map, new_map} fields, then durably write its
// seq field alone as the commit point, then flip which half is current.
func (lf *laneFlog) flogUpdate(ns Namespace, lane int, premapLBA, oldMap, newMap uint32) error {
	newSeq := nseq[lf.entry.seq]
	off := lf.halfOff[lf.next]

	rec := make([]byte, flogRecordSize)
	binary.LittleEndian.PutUint32(rec[0:4], premapLBA)
	binary.LittleEndian.PutUint32(rec[4:8], oldMap)
	binary.LittleEndian.PutUint32(rec[8:12], newMap)
	if err := ns.Write(lane, rec, off); err != nil {
		return err
	}

	seqBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(seqBuf, newSeq)
	if err := ns.Write(lane, seqBuf, off+flogRecordSize); err != nil {
		return err
	}

	lf.entry = flogEntry{preMapLBA: premapLBA, oldMap: oldMap, newMap: newMap, seq: newSeq}
	lf.current, lf.next = lf.next, lf.current
	logger.Sugar.Debugf("flog: lane=%d lba=%d old=%#x new=%#x seq=%d", lane, premapLBA, oldMap, newMap, newSeq)
	return nil
}

// loadLaneFlog reads both halves of a flog pair at baseOff (namespace
// absolute) and applies the recovery rules of §4.3 to determine which half
// is current and whether the map needs repair. If repair is needed,
// needsRepair is true and repairLBA/repairNewMap name the map entry and its
// new value; the caller must apply it before treating the arena as open for
// writes.
func loadLaneFlog(ns Namespace, lane int, baseOff int64) (lf laneFlog, needsRepair bool, repairLBA uint32, repairNewMap uint32, err error) {
	buf := make([]byte, flogEntrySize*2)
	if err := ns.Read(lane, buf, baseOff); err != nil {
		return laneFlog{}, false, 0, 0, err
	}

	a := decodeFlogEntry(buf[0:flogEntrySize])
	b := decodeFlogEntry(buf[flogEntrySize : 2*flogEntrySize])

	lf.halfOff = [2]int64{baseOff, baseOff + flogEntrySize}

	switch {
	case a.seq == b.seq:
		// Both halves equal, including both zero: a freshly laid-out pair
		// always has exactly one half at seq=1 and the other at seq=0, so
		// a.seq==b.seq==0 here means the pair was never fully written --
		// e.g. a crash mid-write of writeArenaLayout's flog buffer. Per
		// §4.3, any pair with both halves at the same sequence number is a
		// consistency fault.
		return laneFlog{}, false, 0, 0, ErrFlogSeqCollision

	case a.seq == 0:
		lf.current, lf.next = 1, 0
		lf.entry = b

	case b.seq == 0:
		lf.current, lf.next = 0, 1
		lf.entry = a

	case nseq[a.seq] == b.seq:
		lf.current, lf.next = 1, 0
		lf.entry = b

	default:
		lf.current, lf.next = 0, 1
		lf.entry = a
	}

	if lf.entry.oldMap == lf.entry.newMap {
		return lf, false, 0, 0, nil
	}

	// old_map != new_map: the transaction this entry records may not have
	// finished updating the map. The caller reads the live map entry and
	// decides; we just report what recovery would rewrite it to.
	return lf, true, lf.entry.preMapLBA, lf.entry.newMap, nil
}
