// Package bttesting provides an in-memory Namespace implementation with
// fault injection, used by the btt package's property and crash-recovery
// tests in place of a real file or device.
package bttesting

import (
	"sync"

	"github.com/codezyu/nvml/btt"
)

// MemNamespace is a btt.Namespace backed by an in-process byte slice. It
// tracks how many durable writes have happened so a test can configure
// DropWritesAfter/FailNextWrite to simulate a crash partway through a
// write or layout-write sequence.
type MemNamespace struct {
	mu   sync.Mutex
	buf  []byte
	seen int

	dropAfter int // -1 means disabled
	failNext  int // remaining writes to fail, then clear
}

// NewMemNamespace allocates a zero-filled in-memory namespace of size bytes.
func NewMemNamespace(size int64) *MemNamespace {
	return &MemNamespace{
		buf:       make([]byte, size),
		dropAfter: -1,
	}
}

// DropWritesAfter configures the namespace to silently discard every write
// after the n-th durable write it has accepted so far, simulating a crash
// mid-sequence. Reads still see whatever was written before the cutoff.
func (m *MemNamespace) DropWritesAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAfter = n
}

// FailNextWrite makes the next n Write calls return an error instead of
// writing, simulating a namespace I/O failure.
func (m *MemNamespace) FailNextWrite(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Reset clears fault-injection state (but not the buffer), for tests that
// want to recover and continue probing post-crash behavior.
func (m *MemNamespace) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAfter = -1
	m.failNext = 0
}

// WriteCount returns the number of Write calls this namespace has accepted
// (including dropped ones), for tests asserting on an exact crash point.
func (m *MemNamespace) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}

func (m *MemNamespace) Read(_ int, buf []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(buf, m.buf[off:])
	if n < len(buf) {
		return btt.ErrIO
	}
	return nil
}

func (m *MemNamespace) Write(_ int, buf []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen++

	if m.failNext > 0 {
		m.failNext--
		return btt.ErrIO
	}
	if m.dropAfter >= 0 && m.seen > m.dropAfter {
		return nil
	}

	copy(m.buf[off:], buf)
	return nil
}

func (m *MemNamespace) Map(_ int, length int, off int64) (btt.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(length)
	if end > int64(len(m.buf)) {
		end = int64(len(m.buf))
	}
	data := make([]byte, end-off)
	copy(data, m.buf[off:end])
	return btt.Window{Data: data, Off: off}, nil
}

func (m *MemNamespace) Sync(_ int, w btt.Window) error {
	return m.Write(0, w.Data, w.Off)
}
