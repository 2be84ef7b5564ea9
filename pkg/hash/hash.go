package hash

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

const (
	// MaxBits is the widest identifier space supported (2^64)
	MaxBits = 64

	// DefaultBits is the identifier width used when none is configured
	DefaultBits = 64
)

// ID is a position on the Chord ring.
type ID uint64

// String returns the identifier in hex.
func (id ID) String() string {
	return fmt.Sprintf("%x", uint64(id))
}

// Space is a circular identifier space of size 2^m.
// Every peer of a ring must use the same m.
type Space struct {
	bits int
	mask uint64
}

// NewSpace returns the identifier space of the given width in bits.
func NewSpace(bits int) (Space, error) {
	if bits <= 0 || bits > MaxBits {
		return Space{}, fmt.Errorf("identifier width must be between 1 and %d, got %d", MaxBits, bits)
	}

	mask := ^uint64(0)
	if bits < MaxBits {
		mask = (uint64(1) << uint(bits)) - 1
	}

	return Space{bits: bits, mask: mask}, nil
}

// Bits returns m, the width of the space.
func (s Space) Bits() int {
	return s.bits
}

// Mask folds an arbitrary value into the space.
func (s Space) Mask(x uint64) ID {
	return ID(x & s.mask)
}

// IsValidID reports whether id already lies within [0, 2^m).
func (s Space) IsValidID(id ID) bool {
	return uint64(id)&^s.mask == 0
}

// Distance computes the clockwise distance from start to end, (end - start) mod 2^m.
func (s Space) Distance(start, end ID) ID {
	return ID((uint64(end) - uint64(start)) & s.mask)
}

// FingerStart computes (n + 2^i) mod 2^m, the start of the i-th finger interval.
func (s Space) FingerStart(n ID, i int) ID {
	if i < 0 || i >= s.bits {
		return s.Mask(uint64(n))
	}
	return ID((uint64(n) + (uint64(1) << uint(i))) & s.mask)
}

// Between checks if id is in the range (start, end) on the ring (exclusive on both ends).
// When start == end the range is the entire ring except start.
//
// Examples (m = 8):
//   - Between(5, 3, 7) = true
//   - Between(7, 3, 7) = false
//   - Between(1, 250, 3) = true   // wraparound
//   - Between(9, 4, 4) = true     // whole ring but 4
func (s Space) Between(id, start, end ID) bool {
	id, start, end = s.Mask(uint64(id)), s.Mask(uint64(start)), s.Mask(uint64(end))
	if start == end {
		return id != start
	}
	d := s.Distance(start, id)
	return d > 0 && d < s.Distance(start, end)
}

// InRange checks if id is in the range (start, end] on the ring.
// When start == end the range is the entire ring except start.
func (s Space) InRange(id, start, end ID) bool {
	id, start, end = s.Mask(uint64(id)), s.Mask(uint64(start)), s.Mask(uint64(end))
	if start == end {
		return id != start
	}
	d := s.Distance(start, id)
	return d > 0 && d <= s.Distance(start, end)
}

// HashAddress hashes a network address ("host:port") to a node identifier.
func (s Space) HashAddress(address string) ID {
	return s.Mask(xxh3.HashString(address))
}
