// Package hash wraps the xxHash variants used by the frame format and by
// content verification.
package hash

import (
	stdhash "hash"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/xxHash/xxHash32"
)

// HeaderChecksum computes the LZ4 frame descriptor checksum: the second byte
// of XXH32 (seed 0) over the descriptor bytes, FLG through the optional
// content size.
func HeaderChecksum(descriptor []byte) byte {
	return byte(Checksum32(descriptor) >> 8)
}

// Checksum32 computes XXH32 with seed 0, as used for block and content checksums.
func Checksum32(data []byte) uint32 {
	h := xxHash32.New(0)
	_, _ = h.Write(data)

	return h.Sum32()
}

// New32 returns a streaming XXH32 hasher with seed 0.
func New32() stdhash.Hash32 {
	return xxHash32.New(0)
}

// Digest computes the xxHash64 of data, used to compare round-tripped content.
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// NewDigest returns a streaming xxHash64 digest.
func NewDigest() *xxhash.Digest {
	return xxhash.New()
}
