package compress

import (
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/arloliu/lz4pipe/format"
)

// lz4CompressorPool pools lz4.Compressor instances for reuse.
// The lz4.Compressor keeps a hash table that is expensive to reallocate per block.
var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// CompressBound returns the worst-case compressed size of an n-byte block.
func CompressBound(n int) int {
	return lz4.CompressBlockBound(n)
}

// LZ4Codec is the fast LZ4 block codec.
type LZ4Codec struct{}

var _ Codec = (*LZ4Codec)(nil)

// NewLZ4Codec creates a new fast LZ4 codec.
func NewLZ4Codec() LZ4Codec {
	return LZ4Codec{}
}

// Type returns format.CodecLZ4.
func (c LZ4Codec) Type() format.CodecType {
	return format.CodecLZ4
}

// CompressBlock compresses src into dst using a pooled lz4.Compressor.
//
// Returns:
//   - int: Compressed length, 0 if src does not fit compressed into dst
//   - error: Compression error if any
func (c LZ4Codec) CompressBlock(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	return lc.CompressBlock(src, dst)
}

// DecompressBlock decodes an LZ4 block into dst.
func (c LZ4Codec) DecompressBlock(dst, src []byte) (int, error) {
	return decompressLZ4(dst, src)
}

func decompressLZ4(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}

	return lz4.UncompressBlock(src, dst)
}
