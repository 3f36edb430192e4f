// Package btt implements a Block Translation Table: single-block,
// power-fail atomic writes over a namespace that itself only guarantees
// byte-level durability, by remapping external logical block addresses to
// dynamically reassigned internal blocks.
package btt

import (
	"sync"
	"sync/atomic"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
)

// Instance is an opaque BTT handle opened over a Namespace. The zero value
// is not usable; construct with New.
type Instance struct {
	ns Namespace

	rawsize    int64
	lbasize    uint32
	parentUUID uuid.UUID
	log        logger.Logger

	layoutMu sync.Mutex
	laidout  atomic.Bool
	closed   atomic.Bool

	arenas []*arena
	nlba   uint64
	nfree  uint32
	nlane  int
	// maxLane is the caller-supplied cap; 0 means uncapped (nlane == nfree).
	maxLane int
}

// New opens a BTT instance over ns. rawsize is the namespace's total size
// in bytes; lbasize is the external block size in bytes. If ns already
// carries a valid layout, it is loaded; otherwise layout creation is
// deferred to the first Write or SetError (§6.1, "Loads or defers layout").
func New(ns Namespace, rawsize int64, lbasize uint32, opts ...Option) (*Instance, error) {
	if lbasize == 0 {
		return nil, ErrLbasizeZero
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	in := &Instance{
		ns:         ns,
		rawsize:    rawsize,
		lbasize:    lbasize,
		parentUUID: cfg.parentUUID,
		log:        cfg.log,
		maxLane:    cfg.maxLane,
	}

	laidout, arenasOnMedia, minNFree, geoms, err := readLayout(ns, 0, rawsize, lbasize, uint32(DefaultNFree))
	if err != nil {
		return nil, err
	}

	if !laidout {
		in.nfree = uint32(DefaultNFree)
		in.nlba = sumExternalNLBA(geoms)
		in.setLaneCount()
		return in, nil
	}

	arenas, err := buildArenas(ns, arenasOnMedia, in.log)
	if err != nil {
		return nil, err
	}
	in.arenas = arenas
	in.nfree = minNFree
	in.nlba = sumExternalNLBAFromArenas(arenas)
	in.laidout.Store(true)
	in.setLaneCount()

	return in, nil
}

func sumExternalNLBA(geoms []arenaGeometry) uint64 {
	var total uint64
	for _, g := range geoms {
		total += uint64(g.externalNLBA)
	}
	return total
}

func sumExternalNLBAFromArenas(arenas []*arena) uint64 {
	var total uint64
	for _, a := range arenas {
		total += uint64(a.externalNLBA)
	}
	return total
}

// buildArenas constructs runtime state for every arena read from media, in
// the same order they appear on media; resolve() walks this order to map
// an external LBA to its owning arena.
func buildArenas(ns Namespace, onMedia []laidOutArena, log logger.Logger) ([]*arena, error) {
	arenas := make([]*arena, len(onMedia))
	for i, lo := range onMedia {
		a, err := buildArena(ns, 0, lo.base, lo.inf, log)
		if err != nil {
			return nil, err
		}
		arenas[i] = a
	}
	return arenas, nil
}

// setLaneCount derives nlane = min(nfree, maxLane), with maxLane == 0
// meaning uncapped (§9 expansion: nlane derivation order).
func (in *Instance) setLaneCount() {
	in.nlane = int(in.nfree)
	if in.maxLane != 0 && in.nlane > in.maxLane {
		in.nlane = in.maxLane
	}
}

// ensureLayout is the one-shot, double-checked layout creation described in
// §4.2/§9: acquire layoutMu, re-check under the lock, and only then call
// writeLayout.
func (in *Instance) ensureLayout(lane int) error {
	in.layoutMu.Lock()
	defer in.layoutMu.Unlock()

	if in.laidout.Load() {
		return nil
	}

	onMedia, err := writeLayout(in.ns, lane, in.parentUUID, in.rawsize, in.lbasize, uint32(DefaultNFree))
	if err != nil {
		return err
	}
	arenas, err := buildArenas(in.ns, onMedia, in.log)
	if err != nil {
		return err
	}

	in.arenas = arenas
	in.nfree = uint32(DefaultNFree)
	in.nlba = sumExternalNLBAFromArenas(arenas)
	in.setLaneCount()
	in.laidout.Store(true)
	return nil
}

// NLane returns min(nfree, maxLane) -- the number of concurrent lanes
// callers may use.
func (in *Instance) NLane() int {
	return in.nlane
}

// NLBA returns the external LBA count. On an unlaid-out namespace this is
// the count a future layout write would produce.
func (in *Instance) NLBA() uint64 {
	return in.nlba
}

// Laidout reports whether the namespace currently carries a valid layout.
func (in *Instance) Laidout() bool {
	return in.laidout.Load()
}

// Close frees the instance's runtime state. It does not touch the
// namespace; per §6.1, fini "frees runtime state only."
func (in *Instance) Close() error {
	in.closed.Store(true)
	in.arenas = nil
	return nil
}
