package btt

// setFlag implements §4.8: resolve the LBA as in Write, but instead of
// allocating a new block, OR flag into the existing map entry under
// mapLock.
func (in *Instance) setFlag(lane int, lba uint64, flag uint32) error {
	a, premapLBA, err := in.resolve(lba)
	if err != nil {
		return err
	}
	if a.isErrored() {
		return ErrArenaError
	}

	entry, idx, err := a.mapLock(in.ns, lane, premapLBA)
	if err != nil {
		return err
	}
	return a.mapUnlock(in.ns, lane, premapLBA, idx, entry|flag)
}

// SetZero marks lba to read as zeros without allocating a new block. An
// ERROR bit already set on the entry stays set, so reads keep failing until
// the next Write. On an unlaid-out namespace this is a no-op, per §4.8.
func (in *Instance) SetZero(lane int, lba uint64) error {
	if in.closed.Load() {
		return ErrClosed
	}
	if lba >= in.nlba {
		return ErrLBAOutOfRange
	}
	if !in.laidout.Load() {
		return nil
	}
	return in.setFlag(lane, lba, zeroFlag)
}

// SetError marks lba so subsequent reads fail with ErrMapEntryError. Unlike
// SetZero, this forces layout creation on an unlaid-out namespace (§4.8).
func (in *Instance) SetError(lane int, lba uint64) error {
	if in.closed.Load() {
		return ErrClosed
	}
	if lba >= in.nlba {
		return ErrLBAOutOfRange
	}
	if !in.laidout.Load() {
		if err := in.ensureLayout(lane); err != nil {
			return err
		}
	}
	return in.setFlag(lane, lba, errorFlag)
}
