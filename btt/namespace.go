package btt

import (
	"fmt"
	"os"
)

// Window is a direct-access view returned by Namespace.Map. Data is the
// mapped bytes; Off is the byte offset within the namespace the window was
// mapped from, carried along so Namespace.Sync knows what to flush without
// the core needing to remember it separately.
type Window struct {
	Data []byte
	Off  int64
}

// Namespace is the capability set a caller provides to New. It is the only
// way the core ever touches storage: every byte the BTT reads or writes
// passes through one of these four methods. Implementations may shard
// whatever host resources (file descriptors, connections) they like across
// lanes; the core contains no lane assignment logic, it only ever passes
// through the lane it was given.
type Namespace interface {
	// Read fills buf from the namespace at byte offset off. The read is
	// durable: the caller can rely on buf reflecting whatever was last
	// written to that range, including across a crash of the calling
	// process (not of Read itself).
	Read(lane int, buf []byte, off int64) error

	// Write copies buf to the namespace at byte offset off. On return, the
	// write is durable: visible to any subsequent Read and guaranteed to
	// survive power loss.
	Write(lane int, buf []byte, off int64) error

	// Map returns a direct-access window onto up to length bytes starting
	// at off. The returned window's Data may be shorter than length;
	// callers must loop. Writes through Data are not durable until Sync.
	Map(lane int, length int, off int64) (Window, error)

	// Sync flushes a window previously returned by Map.
	Sync(lane int, w Window) error
}

// wrapIOErr wraps a namespace-reported error so callers can test for ErrIO
// with errors.Is while errors.Unwrap still reaches the underlying cause.
func wrapIOErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("btt: %s: %w: %w", op, ErrIO, err)
}

// FileNamespace is a Namespace backed by an *os.File. Lane sharding is left
// to the OS file cache: all lanes share one *os.File and rely on pwrite/pread
// semantics (ReadAt/WriteAt) being safe for concurrent callers at disjoint
// offsets, which is how the real hardware these namespaces model behaves.
type FileNamespace struct {
	f *os.File
}

// NewFileNamespace wraps an already-open file for use as a BTT namespace.
// The file must already exist and be at least as large as the BTT's
// rawsize; FileNamespace never grows or truncates it.
func NewFileNamespace(f *os.File) *FileNamespace {
	return &FileNamespace{f: f}
}

func (n *FileNamespace) Read(_ int, buf []byte, off int64) error {
	_, err := n.f.ReadAt(buf, off)
	return wrapIOErr("read", err)
}

func (n *FileNamespace) Write(_ int, buf []byte, off int64) error {
	if _, err := n.f.WriteAt(buf, off); err != nil {
		return wrapIOErr("write", err)
	}
	return wrapIOErr("write-sync", n.f.Sync())
}

// Map reads length bytes at off into a private buffer. FileNamespace has no
// real shared-memory mapping; the window is a copy, and Sync writes it back
// before fsyncing. This preserves the Map+Sync contract (writes through Data
// are invisible until Sync) while staying in pure Go.
func (n *FileNamespace) Map(_ int, length int, off int64) (Window, error) {
	buf := make([]byte, length)
	nr, err := n.f.ReadAt(buf, off)
	if err != nil && nr == 0 {
		return Window{}, wrapIOErr("map", err)
	}
	return Window{Data: buf[:nr], Off: off}, nil
}

func (n *FileNamespace) Sync(_ int, w Window) error {
	if _, err := n.f.WriteAt(w.Data, w.Off); err != nil {
		return wrapIOErr("sync", err)
	}
	return wrapIOErr("sync", n.f.Sync())
}
