package format

import "fmt"

type (
	// BlockSize is the LZ4 frame block maximum size code stored in the BD byte (bits 4-6).
	BlockSize uint8
	// Operation selects the direction a block codec engine works in.
	Operation uint8
	// SlotState is the lifecycle state of an overlap slot.
	SlotState uint8
	// CodecType identifies a block codec implementation.
	CodecType uint8
)

const (
	Block64KB  BlockSize = 0x4 // Block64KB represents 64 KiB blocks.
	Block256KB BlockSize = 0x5 // Block256KB represents 256 KiB blocks.
	Block1MB   BlockSize = 0x6 // Block1MB represents 1 MiB blocks.
	Block4MB   BlockSize = 0x7 // Block4MB represents 4 MiB blocks.

	OpCompress   Operation = 0x1 // OpCompress encodes raw blocks.
	OpDecompress Operation = 0x2 // OpDecompress decodes compressed blocks.

	SlotIdle      SlotState = 0x0 // SlotIdle means the slot sits in the free pool.
	SlotStaged    SlotState = 0x1 // SlotStaged means input bytes are bound to the slot.
	SlotSubmitted SlotState = 0x2 // SlotSubmitted means the engine owns the slot.
	SlotCompleted SlotState = 0x3 // SlotCompleted means the engine result is available.
	SlotHarvested SlotState = 0x4 // SlotHarvested means the result was handed to the caller.
	SlotFaulted   SlotState = 0x5 // SlotFaulted means the engine reported a failure.

	CodecLZ4   CodecType = 0x1 // CodecLZ4 represents the fast LZ4 block codec.
	CodecLZ4HC CodecType = 0x2 // CodecLZ4HC represents the high-compression LZ4 block codec.
	CodecStore CodecType = 0x3 // CodecStore represents a codec that stores every block raw.
)

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = Block64KB

// Valid reports whether b is one of the four block size codes of the frame format.
func (b BlockSize) Valid() bool {
	return b >= Block64KB && b <= Block4MB
}

// Bytes returns the block maximum size in bytes, or 0 for an invalid code.
func (b BlockSize) Bytes() int {
	if !b.Valid() {
		return 0
	}

	return 1 << (8 + 2*uint(b))
}

func (b BlockSize) String() string {
	switch b {
	case Block64KB:
		return "64KB"
	case Block256KB:
		return "256KB"
	case Block1MB:
		return "1MB"
	case Block4MB:
		return "4MB"
	default:
		return "Unknown"
	}
}

// BlockSizeFromKB maps a size in KiB (64, 256, 1024, 4096) to its block size code.
//
// Parameters:
//   - kb: Block size in KiB
//
// Returns:
//   - BlockSize: Matching block size code
//   - error: Error if kb is not one of the supported sizes
func BlockSizeFromKB(kb int) (BlockSize, error) {
	switch kb {
	case 64:
		return Block64KB, nil
	case 256:
		return Block256KB, nil
	case 1024:
		return Block1MB, nil
	case 4096:
		return Block4MB, nil
	default:
		return 0, fmt.Errorf("unsupported block size: %dKB", kb)
	}
}

func (o Operation) String() string {
	switch o {
	case OpCompress:
		return "compress"
	case OpDecompress:
		return "decompress"
	default:
		return "unknown"
	}
}

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotStaged:
		return "Staged"
	case SlotSubmitted:
		return "Submitted"
	case SlotCompleted:
		return "Completed"
	case SlotHarvested:
		return "Harvested"
	case SlotFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

func (c CodecType) String() string {
	switch c {
	case CodecLZ4:
		return "LZ4"
	case CodecLZ4HC:
		return "LZ4HC"
	case CodecStore:
		return "Store"
	default:
		return "Unknown"
	}
}

// ParseCodecType maps a codec name ("fast", "hc", "store") to its CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "fast", "lz4":
		return CodecLZ4, nil
	case "hc", "lz4hc":
		return CodecLZ4HC, nil
	case "store", "none":
		return CodecStore, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}
