package btt

import "github.com/codezyu/nvml/bitset"

// ArenaReport is the per-arena result of Check.
type ArenaReport struct {
	Consistent    bool
	DuplicateLBAs []uint32
	MissingLBAs   []uint32
}

// Check implements §4.9: single-threaded, caller must quiesce all other
// operations against in. For each arena, a bitmap over [0, internal_nlba)
// is built by walking the on-media map and the in-memory flog free blocks;
// an arena is consistent iff every internal LBA is referenced exactly once.
func (in *Instance) Check(lane int) ([]ArenaReport, error) {
	if in.closed.Load() {
		return nil, ErrClosed
	}
	if !in.laidout.Load() {
		return nil, nil
	}

	reports := make([]ArenaReport, len(in.arenas))
	for i, a := range in.arenas {
		r, err := checkArena(in.ns, lane, a)
		if err != nil {
			return nil, err
		}
		reports[i] = r
	}
	return reports, nil
}

func checkArena(ns Namespace, lane int, a *arena) (ArenaReport, error) {
	bits := bitset.New(int(a.internalNLBA))
	r := ArenaReport{Consistent: true}

	mark := func(lba uint32) {
		if int(lba) >= bits.Len() {
			r.Consistent = false
			return
		}
		if bits.Set(int(lba)) {
			r.Consistent = false
			r.DuplicateLBAs = append(r.DuplicateLBAs, lba)
		}
	}

	// Only the external portion of the map is walked here; the free-pool
	// portion of internal_nlba is accounted for via the in-memory flog
	// below, matching §4.9's "walk the map once... then walk the flog."
	want := int(a.externalNLBA) * MapEntrySize
	for off := 0; off < want; {
		win, err := ns.Map(lane, want-off, a.mapoff+int64(off))
		if err != nil {
			return ArenaReport{}, err
		}
		if len(win.Data) == 0 {
			break
		}
		for i := 0; i+MapEntrySize <= len(win.Data); i += MapEntrySize {
			entry := decodeMapEntry(win.Data[i:])
			mark(mapEntryLBA(entry))
		}
		off += len(win.Data)
	}

	for _, lf := range a.flogs {
		mark(mapEntryLBA(lf.entry.oldMap))
	}

	if ok, _ := bits.AllSet(); !ok {
		r.Consistent = false
		for i := 0; i < bits.Len(); i++ {
			if !bits.Get(i) {
				r.MissingLBAs = append(r.MissingLBAs, uint32(i))
			}
		}
	}
	return r, nil
}
