package btt

import (
	"sync"
	"sync/atomic"

	"github.com/datatrails/go-datatrails-common/logger"
)

// arena is the runtime state of one arena: its on-media geometry (data, map
// and flog as namespace-absolute offsets; infooff arena-relative, with base
// added at use), the per-lane flog state, the read-tracking
// table, and the map's striping locks. It is built once, when the instance
// opens or first lays out the namespace, and lives for the instance's
// lifetime.
type arena struct {
	base int64 // namespace-absolute offset of this arena's start

	externalNLBA uint32
	internalNLBA uint32
	internalLBASize uint32
	nfree           uint32

	dataoff int64 // namespace-absolute
	mapoff  int64
	flogoff int64
	infooff int64 // arena-relative

	flogs    []laneFlog // length nfree, one per lane/free-block slot
	rtt      []uint32   // length nfree, accessed via atomic ops
	mapLocks []sync.Mutex

	errored atomic.Bool // set once the arena is marked ERROR_MASK

	log logger.Logger
}

// rttLoad atomically reads rtt[lane].
func (a *arena) rttLoad(lane int) uint32 {
	return atomic.LoadUint32(&a.rtt[lane])
}

// rttStore atomically publishes entry into rtt[lane]. Per §5/§9, the store
// must be followed by a full fence before the subsequent map re-read; on
// this architecture a sequentially-consistent atomic store already
// provides that ordering with respect to other atomic operations, so no
// separate fence call is needed beyond using the atomic package throughout.
func (a *arena) rttStore(lane int, entry uint32) {
	atomic.StoreUint32(&a.rtt[lane], entry)
}

func (a *arena) rttClear(lane int) {
	a.rttStore(lane, emptyRTTSlot)
}

// markError sets ERROR_MASK on this arena's info block (both copies) and
// flips the in-memory flag that blocks further writes. Reads of
// already-valid entries remain permitted, per §7.
func (a *arena) markError(ns Namespace, lane int) error {
	if a.errored.Swap(true) {
		return nil
	}
	if a.log != nil {
		a.log.Infof("btt: marking arena at %d with ERROR_MASK", a.base)
	}
	return a.rewriteFlags(ns, lane, ErrorMask)
}

func (a *arena) isErrored() bool {
	return a.errored.Load()
}

// rewriteFlags re-reads both info block copies, ORs extra into their flags
// field, and rewrites both, checksum last -- mirroring the original's
// practice of keeping the two copies byte-identical.
func (a *arena) rewriteFlags(ns Namespace, lane int, extra uint32) error {
	headBuf := make([]byte, infoSize)
	if err := ns.Read(lane, headBuf, a.base); err != nil {
		return err
	}
	inf, ok := decodeInfo(headBuf)
	if !ok {
		return nil
	}
	inf.flags |= extra

	encoded := encodeInfo(inf)
	if err := ns.Write(lane, encoded, a.base); err != nil {
		return err
	}
	return ns.Write(lane, encoded, a.base+a.infooff)
}

// buildArena constructs the runtime state for one arena, given its
// namespace-absolute base offset and the geometry+info already read from
// media. It loads every lane's flog pair, applying the recovery rules of
// §4.3, repairing any torn map update it finds along the way.
func buildArena(ns Namespace, lane int, base int64, inf info, log logger.Logger) (*arena, error) {
	a := &arena{
		base:            base,
		externalNLBA:    inf.externalNLBA,
		internalNLBA:    inf.internalNLBA,
		internalLBASize: inf.internalLBASize,
		nfree:           inf.nfree,
		dataoff:         base + int64(inf.dataoff),
		mapoff:          base + int64(inf.mapoff),
		flogoff:         base + int64(inf.flogoff),
		infooff:         int64(inf.infooff),
		flogs:           make([]laneFlog, inf.nfree),
		rtt:             make([]uint32, inf.nfree),
		mapLocks:        make([]sync.Mutex, inf.nfree),
		log:             log,
	}
	for i := range a.rtt {
		a.rtt[i] = emptyRTTSlot
	}
	// Full fence after rtt initialization, before any lane observes it.
	atomic.StoreUint32(&a.rtt[0], a.rtt[0])

	if inf.flags&ErrorMask != 0 {
		a.errored.Store(true)
	}

	pairStride := roundUp(2*flogEntrySize, FlogPairAlign)
	for k := uint32(0); k < inf.nfree; k++ {
		pairOff := a.flogoff + int64(k)*pairStride
		lf, needsRepair, repairLBA, repairNewMap, err := loadLaneFlog(ns, lane, pairOff)
		if err != nil {
			if err == ErrFlogSeqCollision {
				if merr := a.markError(ns, lane); merr != nil {
					return nil, merr
				}
				a.flogs[k] = laneFlog{}
				continue
			}
			return nil, err
		}
		a.flogs[k] = lf

		if needsRepair {
			if err := a.repairMapEntry(ns, lane, repairLBA, lf.entry.oldMap, repairNewMap); err != nil {
				return nil, err
			}
		}
	}

	return a, nil
}

// repairMapEntry implements the §4.3 recovery decision: if the live map
// entry still shows the pre-transaction value, the map update never
// happened -- finish it now. If it already shows the post-transaction
// value, or neither, there's nothing to do.
func (a *arena) repairMapEntry(ns Namespace, lane int, premapLBA, oldMap, newMap uint32) error {
	entry, idx, err := a.mapLock(ns, lane, premapLBA)
	if err != nil {
		return err
	}
	if entry != oldMap {
		a.mapAbort(idx)
		return nil
	}
	return a.mapUnlock(ns, lane, premapLBA, idx, newMap)
}
