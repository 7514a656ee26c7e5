package compress

import (
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/arloliu/lz4pipe/format"
)

// DefaultHCLevel is the search depth used by CreateCodec for CodecLZ4HC.
const DefaultHCLevel = lz4.Level9

var lz4HCCompressorPool = sync.Pool{
	New: func() any {
		return &lz4.CompressorHC{}
	},
}

// LZ4HCCodec is the high-compression LZ4 block codec. Its output is decoded
// by the same block decoder as LZ4Codec.
type LZ4HCCodec struct {
	level lz4.CompressionLevel
}

var _ Codec = (*LZ4HCCodec)(nil)

// NewLZ4HCCodec creates a high-compression codec with the given level (lz4.Level1 .. lz4.Level9).
func NewLZ4HCCodec(level lz4.CompressionLevel) LZ4HCCodec {
	return LZ4HCCodec{level: level}
}

// Type returns format.CodecLZ4HC.
func (c LZ4HCCodec) Type() format.CodecType {
	return format.CodecLZ4HC
}

// CompressBlock compresses src into dst using a pooled lz4.CompressorHC.
func (c LZ4HCCodec) CompressBlock(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}

	hc, _ := lz4HCCompressorPool.Get().(*lz4.CompressorHC)
	defer lz4HCCompressorPool.Put(hc)
	hc.Level = c.level

	return hc.CompressBlock(src, dst)
}

// DecompressBlock decodes an LZ4 block into dst.
func (c LZ4HCCodec) DecompressBlock(dst, src []byte) (int, error) {
	return decompressLZ4(dst, src)
}
