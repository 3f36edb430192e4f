// Package bitset provides a compact, byte-packed set of bits, used by the
// btt package's consistency checker to track which internal LBAs have been
// referenced while walking an arena's map and flog.
package bitset

// Bits is a fixed-size, byte-packed bitmap. Bit order is LSB0: bit i of the
// set lives at byte i/8, bit i%8 of that byte (matching the convention the
// bloom package's region encoding uses for its filter bitsets).
type Bits struct {
	n    int
	bits []byte
}

// New allocates a Bits covering n bits, all initially clear.
func New(n int) *Bits {
	return &Bits{n: n, bits: make([]byte, bytesFor(n))}
}

// bytesFor returns ceil(n/8), the byte length needed to hold n bits.
func bytesFor(n int) int {
	return (n + 7) / 8
}

// Len returns the number of addressable bits.
func (b *Bits) Len() int {
	return b.n
}

// Set sets bit i and reports whether it was already set.
func (b *Bits) Set(i int) (alreadySet bool) {
	byteIdx, mask := i/8, byte(1<<(uint(i)%8))
	alreadySet = b.bits[byteIdx]&mask != 0
	b.bits[byteIdx] |= mask
	return alreadySet
}

// Get reports whether bit i is set.
func (b *Bits) Get(i int) bool {
	byteIdx, mask := i/8, byte(1<<(uint(i)%8))
	return b.bits[byteIdx]&mask != 0
}

// AllSet reports whether every bit in [0, Len()) is set, returning the index
// of the first unset bit if not.
func (b *Bits) AllSet() (ok bool, firstUnset int) {
	for i := 0; i < b.n; i++ {
		if !b.Get(i) {
			return false, i
		}
	}
	return true, -1
}

// Count returns the number of set bits.
func (b *Bits) Count() int {
	n := 0
	for i := 0; i < b.n; i++ {
		if b.Get(i) {
			n++
		}
	}
	return n
}
