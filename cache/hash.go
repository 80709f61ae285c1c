package cache

import "github.com/cespare/xxhash/v2"

// hashBytes computes the xxHash64 digest (seed 0) of buf. SPEC_FULL.md §9a
// documents the hash-width redesign: the original format stores a 32-bit
// xxHash in a 64-bit field; this implementation hashes the full 64 bits with
// cespare/xxhash/v2, the only hashing library in the dependency pack.
func hashBytes(buf []byte) uint64 {
	return xxhash.Sum64(buf)
}
