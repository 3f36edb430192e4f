package btt

import (
	"encoding/binary"

	"github.com/datatrails/go-datatrails-common/logger"
)

// Map entry bit layout: low 30 bits are the internal LBA, bit 30 marks a
// read-as-zeros entry, bit 31 marks a read-error entry.
const (
	lbaMask   uint32 = 0x3FFFFFFF
	zeroFlag  uint32 = 1 << 30
	errorFlag uint32 = 1 << 31
)

// emptyRTTSlot is the sentinel stored in an idle rtt slot. A map entry can
// carry both ZERO and ERROR (SetError on an untouched, identity-mapped LBA
// does that), but Read returns before publishing any entry with ERROR set,
// so no published rtt value equals the sentinel.
const emptyRTTSlot uint32 = errorFlag | zeroFlag

func decodeMapEntry(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

func encodeMapEntry(buf []byte, entry uint32) {
	binary.LittleEndian.PutUint32(buf, entry)
}

func mapEntryLBA(entry uint32) uint32   { return entry & lbaMask }
func mapEntryIsZero(entry uint32) bool  { return entry&zeroFlag != 0 }
func mapEntryIsError(entry uint32) bool { return entry&errorFlag != 0 }

// mapLockIndex returns the spinlock index guarding premapLBA's map entry.
func mapLockIndex(premapLBA uint32, nfree uint32) uint32 {
	return premapLBA % nfree
}

// mapOffset returns the namespace-absolute byte offset of premapLBA's map entry.
func (a *arena) mapOffset(premapLBA uint32) int64 {
	return a.mapoff + int64(premapLBA)*MapEntrySize
}

// mapLock acquires the spinlock for premapLBA and reads the current entry
// under it. Callers must later call mapUnlock (to commit a new entry) or
// mapAbort (to release without writing).
func (a *arena) mapLock(ns Namespace, lane int, premapLBA uint32) (entry uint32, idx uint32, err error) {
	idx = mapLockIndex(premapLBA, a.nfree)
	a.mapLocks[idx].Lock()

	buf := make([]byte, MapEntrySize)
	if err := ns.Read(lane, buf, a.mapOffset(premapLBA)); err != nil {
		a.mapLocks[idx].Unlock()
		return 0, idx, err
	}
	entry = decodeMapEntry(buf)
	logger.Sugar.Debugf("map: lock lba=%d idx=%d entry=%#x", premapLBA, idx, entry)
	return entry, idx, nil
}

// mapUnlock writes newEntry to premapLBA's map slot and releases the lock
// acquired by mapLock.
func (a *arena) mapUnlock(ns Namespace, lane int, premapLBA uint32, idx uint32, newEntry uint32) error {
	defer a.mapLocks[idx].Unlock()

	buf := make([]byte, MapEntrySize)
	encodeMapEntry(buf, newEntry)
	logger.Sugar.Debugf("map: unlock lba=%d idx=%d entry=%#x", premapLBA, idx, newEntry)
	return ns.Write(lane, buf, a.mapOffset(premapLBA))
}

// mapAbort releases the lock acquired by mapLock without writing a new entry.
func (a *arena) mapAbort(idx uint32) {
	a.mapLocks[idx].Unlock()
}
