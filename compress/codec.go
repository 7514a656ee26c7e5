package compress

import (
	"fmt"

	"github.com/arloliu/lz4pipe/format"
)

// BlockCompressor compresses one independent frame block.
//
// Implementations encode src into dst in the LZ4 block format. A return of
// (0, nil) means the block is incompressible into dst; callers then store the
// block raw. Any n ≥ len(src) is treated the same way by the pipelines.
type BlockCompressor interface {
	// CompressBlock compresses src into dst and returns the number of bytes written.
	//
	// Memory management:
	//   - dst is caller-owned; size it with CompressBound to never see (0, nil)
	//     for data that does shrink
	//   - src is not modified
	CompressBlock(dst, src []byte) (int, error)
}

// BlockDecompressor decodes one independent LZ4 block.
type BlockDecompressor interface {
	// DecompressBlock decodes src into dst and returns the decoded length.
	//
	// Error conditions:
	//   - Returns error if src is not a valid LZ4 block
	//   - Returns error if the decoded data does not fit in dst
	DecompressBlock(dst, src []byte) (int, error)
}

// Codec combines both directions. Codecs must be safe for concurrent use: one
// Codec instance backs every engine of an engine.Context.
type Codec interface {
	BlockCompressor
	BlockDecompressor
	Type() format.CodecType
}

// CompressionStats summarizes a compressed frame.
type CompressionStats struct {
	// Codec identifies the block codec used
	Codec format.CodecType

	// OriginalSize is the raw content length
	OriginalSize int64

	// CompressedSize is the frame length including header and trailer
	CompressedSize int64

	// Blocks is the number of blocks in the frame
	Blocks int

	// RawBlocks is the number of blocks stored raw
	RawBlocks int
}

// CompressionRatio returns CompressedSize / OriginalSize, or 0 for empty content.
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space savings as a percentage.
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

// CreateCodec creates a Codec for the given type.
//
// Parameters:
//   - codecType: CodecLZ4, CodecLZ4HC or CodecStore
//
// Returns:
//   - Codec: Codec instance
//   - error: Invalid codec type error
func CreateCodec(codecType format.CodecType) (Codec, error) {
	switch codecType {
	case format.CodecLZ4:
		return NewLZ4Codec(), nil
	case format.CodecLZ4HC:
		return NewLZ4HCCodec(DefaultHCLevel), nil
	case format.CodecStore:
		return NewStoreCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec: %s", codecType)
	}
}
