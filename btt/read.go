package btt

// resolve locates the arena and pre-map LBA that external LBA lba belongs
// to: arenas are consulted in order, and the arena whose running external
// LBA count first exceeds lba owns it.
func (in *Instance) resolve(lba uint64) (a *arena, premapLBA uint32, err error) {
	for _, a := range in.arenas {
		if lba < uint64(a.externalNLBA) {
			return a, uint32(lba), nil
		}
		lba -= uint64(a.externalNLBA)
	}
	return nil, 0, ErrLBAOutOfRange
}

// Read implements §4.6: resolve the LBA, read the map entry, publish it into
// the rtt with a re-read to close the race against a concurrent free, then
// read the data block. buf must be at least in.lbasize bytes; only the
// first lbasize bytes are filled.
func (in *Instance) Read(lane int, lba uint64, buf []byte) error {
	if in.closed.Load() {
		return ErrClosed
	}
	if lba >= in.nlba {
		return ErrLBAOutOfRange
	}
	if !in.laidout.Load() {
		clear(buf[:in.lbasize])
		return nil
	}

	a, premapLBA, err := in.resolve(lba)
	if err != nil {
		return err
	}

	entryBuf := make([]byte, MapEntrySize)
	if err := in.ns.Read(lane, entryBuf, a.mapOffset(premapLBA)); err != nil {
		return err
	}
	entry := decodeMapEntry(entryBuf)

	for {
		if mapEntryIsError(entry) {
			return ErrMapEntryError
		}
		if mapEntryIsZero(entry) {
			clear(buf[:in.lbasize])
			return nil
		}

		a.rttStore(lane, entry)

		if err := in.ns.Read(lane, entryBuf, a.mapOffset(premapLBA)); err != nil {
			a.rttClear(lane)
			return err
		}
		reread := decodeMapEntry(entryBuf)
		if reread == entry {
			break
		}
		entry = reread
	}
	defer a.rttClear(lane)

	off := a.dataoff + int64(mapEntryLBA(entry))*int64(a.internalLBASize)
	return in.ns.Read(lane, buf[:in.lbasize], off)
}
