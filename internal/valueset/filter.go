package valueset

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// RsFilter is a one-sided membership filter over resource server ids. It is
// the bitwise OR of the 128 bits of every id ever added.
//
// MayContain never returns false for an added id, but may return true for an
// id that was never added, so a hit must be confirmed by scanning. Ids are
// never removed; only Reset clears the filter.
type RsFilter struct {
	hi uint64
	lo uint64
}

func splitUUID(u uuid.UUID) (hi, lo uint64) {
	return binary.BigEndian.Uint64(u[:8]), binary.BigEndian.Uint64(u[8:])
}

// Add records id in the filter.
func (f *RsFilter) Add(id uuid.UUID) {
	hi, lo := splitUUID(id)
	f.hi |= hi
	f.lo |= lo
}

// MayContain reports whether id might have been added.
func (f RsFilter) MayContain(id uuid.UUID) bool {
	hi, lo := splitUUID(id)
	return f.hi&hi == hi && f.lo&lo == lo
}

// Union returns a filter admitting everything either filter admits.
func (f RsFilter) Union(other RsFilter) RsFilter {
	return RsFilter{hi: f.hi | other.hi, lo: f.lo | other.lo}
}

// Reset clears the filter.
func (f *RsFilter) Reset() {
	f.hi, f.lo = 0, 0
}

