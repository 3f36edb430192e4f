package btt

import "github.com/google/uuid"

// Geometry constants. These are package-level vars rather than consts so
// tests (and callers sizing small namespaces) can override production
// defaults -- the seed scenarios in the testable-properties suite run an
// 8 MiB namespace against a 16 MiB ARENA_MAX, which is impossible to express
// if these are compile-time constants sized for real NVDIMM hardware.
var (
	ArenaMax             int64 = 1 << 39
	ArenaMin             int64 = 1 << 24
	Alignment            int64 = 4096
	FlogPairAlign        int64 = 64
	InternalLBAAlignment int64 = 256
	MinLBA               int64 = 512
	DefaultNFree         int64 = 256
)

// MapEntrySize is the on-media width of one map entry. Fixed by the wire
// format; never overridden.
const MapEntrySize = 4

// flogEntrySize is the on-media width of one flog record
// ({lba, old_map, new_map, seq}, each u32).
const flogEntrySize = 16

// arenaGeometry is the set of sizes and offsets computeGeometry derives for
// a single arena. Offsets are arena-relative, matching the on-media format;
// layout.go's caller adds the arena's namespace-absolute base to each before
// storing it in an arena's runtime state.
type arenaGeometry struct {
	size            int64
	nfree           uint32
	internalLBASize uint32
	internalNLBA    uint32
	externalNLBA    uint32
	flogSize        int64
	dataoff         int64
	mapoff          int64
	flogoff         int64
	infooff         int64
}

// roundUp rounds n up to the nearest multiple of align.
func roundUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// computeGeometry derives the deterministic per-arena layout for a namespace
// of size rawsize with external block size lbasize and nfree free blocks per
// arena. It performs the "calculate only" half of the original write_layout:
// callers use it both to size a layout about to be written, and to validate
// bounds (nlba, etc.) against a namespace that has no valid layout yet.
//
// Returned narena is the number of arenas rawsize partitions into: rawsize /
// ArenaMax, plus one more if the remainder is >= ArenaMin. geoms has one
// entry per arena; the last entry may be smaller than ArenaMax (but never
// smaller than ArenaMin).
func computeGeometry(rawsize int64, lbasize uint32, nfree uint32) (narena int, geoms []arenaGeometry, err error) {
	if rawsize < ArenaMin {
		return 0, nil, ErrRawsizeTooSmall
	}
	if lbasize == 0 {
		return 0, nil, ErrLbasizeZero
	}

	full := rawsize / ArenaMax
	rem := rawsize % ArenaMax
	narena = int(full)
	if rem >= ArenaMin {
		narena++
	}
	if narena == 0 {
		return 0, nil, ErrNoArenas
	}

	geoms = make([]arenaGeometry, narena)
	remaining := rawsize
	for i := 0; i < narena; i++ {
		size := ArenaMax
		if remaining < ArenaMax {
			size = remaining
		}
		g, gerr := arenaGeometryFor(size, lbasize, nfree)
		if gerr != nil {
			return 0, nil, gerr
		}
		geoms[i] = g
		remaining -= size
	}
	return narena, geoms, nil
}

// arenaGeometryFor computes the geometry of a single arena of the given
// size, per spec §4.2's "Write path" derivation.
func arenaGeometryFor(size int64, lbasize uint32, nfree uint32) (arenaGeometry, error) {
	internalLBASize := roundUp(max64(int64(lbasize), MinLBA), InternalLBAAlignment)

	flogSize := roundUp(int64(nfree)*roundUp(2*flogEntrySize, FlogPairAlign), Alignment)

	infooff := size - infoSize
	flogoff := infooff - flogSize

	// arena_datasize is the space available for data + map, i.e. everything
	// after the leading info block and before the flog region.
	arenaDatasize := flogoff - infoSize
	if arenaDatasize <= Alignment {
		return arenaGeometry{}, ErrRawsizeTooSmall
	}

	internalNLBA := uint64(arenaDatasize-Alignment) / uint64(internalLBASize+MapEntrySize)
	if internalNLBA <= uint64(nfree) {
		return arenaGeometry{}, ErrRawsizeTooSmall
	}
	externalNLBA := internalNLBA - uint64(nfree)

	// mapsize covers only the externally-addressable portion of the map;
	// the original rounds it up to Alignment (btt.c write_layout).
	mapSize := roundUp(int64(externalNLBA)*MapEntrySize, Alignment)
	mapoff := flogoff - mapSize

	return arenaGeometry{
		size:            size,
		nfree:           nfree,
		internalLBASize: uint32(internalLBASize),
		internalNLBA:    uint32(internalNLBA),
		externalNLBA:    uint32(externalNLBA),
		flogSize:        flogSize,
		dataoff:         infoSize,
		mapoff:          mapoff,
		flogoff:         flogoff,
		infooff:         infooff,
	}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// laidOutArena is what readLayout records per arena before arena runtime
// construction: the namespace-absolute base and the decoded info block.
type laidOutArena struct {
	base int64
	inf  info
}

// readLayout implements §4.2's read path: walk the namespace from offset 0
// following each arena's nextoff, validating and decoding info blocks. If
// the very first info block is invalid, the namespace is unlaid-out; the
// caller still gets the geometry a future writeLayout would produce so
// bounds checks (nlba) work before any data exists.
func readLayout(ns Namespace, lane int, rawsize int64, lbasize uint32, nfree uint32) (laidout bool, arenas []laidOutArena, minNFree uint32, geoms []arenaGeometry, err error) {
	buf := make([]byte, infoSize)
	if err := ns.Read(lane, buf, 0); err != nil {
		return false, nil, 0, nil, err
	}
	first, ok := decodeInfo(buf)
	if !ok {
		_, geoms, gerr := computeGeometry(rawsize, lbasize, nfree)
		if gerr != nil {
			return false, nil, 0, nil, gerr
		}
		return false, nil, 0, geoms, nil
	}

	minNFree = first.nfree
	off := int64(0)
	for {
		hb := make([]byte, infoSize)
		if err := ns.Read(lane, hb, off); err != nil {
			return false, nil, 0, nil, err
		}
		inf, ok := decodeInfo(hb)
		if !ok {
			break
		}
		if inf.nfree < minNFree {
			minNFree = inf.nfree
		}
		arenas = append(arenas, laidOutArena{base: off, inf: inf})
		if inf.nextoff == 0 {
			break
		}
		off += int64(inf.nextoff)
	}
	return true, arenas, minNFree, nil, nil
}

// writeLayout implements §4.2's write path: compute deterministic geometry,
// write the identity map (via mapped windows and Sync) and the initialized
// flog pairs for every arena, then write both info block copies with the
// checksum filled in last. Failure partway through leaves the namespace
// unlaid-out; the original does not roll back, and neither do we (§9 Open
// Question).
func writeLayout(ns Namespace, lane int, parentUUID uuid.UUID, rawsize int64, lbasize uint32, nfree uint32) ([]laidOutArena, error) {
	narena, geoms, err := computeGeometry(rawsize, lbasize, nfree)
	if err != nil {
		return nil, err
	}

	arenas := make([]laidOutArena, narena)
	base := int64(0)
	for i, g := range geoms {
		if err := writeArenaLayout(ns, lane, base, g, parentUUID, lbasize, i == narena-1); err != nil {
			return nil, err
		}

		hb := make([]byte, infoSize)
		if err := ns.Read(lane, hb, base); err != nil {
			return nil, err
		}
		inf, _ := decodeInfo(hb)
		arenas[i] = laidOutArena{base: base, inf: inf}

		base += g.size
	}
	return arenas, nil
}

// writeArenaLayout writes one arena's identity map, initialized flog pairs,
// and duplicated info blocks, per §4.2's write-order requirement: map,
// then flog, then info (checksummed last).
func writeArenaLayout(ns Namespace, lane int, base int64, g arenaGeometry, parentUUID uuid.UUID, lbasize uint32, last bool) error {
	// Map returns at most as many bytes as asked for, per the Namespace
	// contract; loop until every map entry has been written and synced.
	// Only the external_nlba entries are ever addressed by a pre-map LBA;
	// the alignment padding beyond them (see arenaGeometryFor) is left as
	// the namespace's initial zero state.
	identitySize := int(g.externalNLBA) * MapEntrySize
	entriesWritten := 0
	for off := 0; off < identitySize; {
		win, err := ns.Map(lane, identitySize-off, base+g.mapoff+int64(off))
		if err != nil {
			return err
		}
		if len(win.Data) == 0 {
			return ErrRawsizeTooSmall
		}
		for i := 0; i+MapEntrySize <= len(win.Data); i += MapEntrySize {
			encodeMapEntry(win.Data[i:], uint32(entriesWritten)|zeroFlag)
			entriesWritten++
		}
		if err := ns.Sync(lane, win); err != nil {
			return err
		}
		off += len(win.Data)
	}

	pairStride := roundUp(2*flogEntrySize, FlogPairAlign)
	flogBuf := make([]byte, int64(g.nfree)*pairStride)
	for k := uint32(0); k < g.nfree; k++ {
		off := int64(k) * pairStride
		freeBlock := (g.externalNLBA + k) | zeroFlag
		encodeFlogEntry(flogBuf[off:off+flogEntrySize], flogEntry{
			preMapLBA: 0,
			oldMap:    freeBlock,
			newMap:    freeBlock,
			seq:       1,
		})
		// second half stays all zero (seq=0, unwritten)
	}
	if err := ns.Write(lane, flogBuf, base+g.flogoff); err != nil {
		return err
	}

	inf := info{
		parentUUID:      parentUUID,
		externalLBASize: lbasize,
		externalNLBA:    g.externalNLBA,
		internalLBASize: g.internalLBASize,
		internalNLBA:    g.internalNLBA,
		nfree:           g.nfree,
		infosize:        infoSize,
		dataoff:         uint64(g.dataoff),
		mapoff:          uint64(g.mapoff),
		flogoff:         uint64(g.flogoff),
		infooff:         uint64(g.infooff),
		major:           MajorVersion,
		minor:           minorVersion,
	}
	if !last {
		inf.nextoff = uint64(g.size)
	}

	encoded := encodeInfo(inf)
	if err := ns.Write(lane, encoded, base); err != nil {
		return err
	}
	return ns.Write(lane, encoded, base+g.infooff)
}
