package frame

// Magic is the LZ4 frame magic number, stored little-endian.
const Magic uint32 = 0x184D2204

// FLG bits.
const (
	FlagDictID          = 0x01 // dictionary ID present (unsupported)
	FlagReserved        = 0x02 // must be zero
	FlagContentChecksum = 0x04 // XXH32 of the content follows the EndMark
	FlagContentSize     = 0x08 // 8-byte content size follows BD
	FlagBlockChecksum   = 0x10 // XXH32 of each block payload follows it
	FlagBlockIndep      = 0x20 // blocks do not reference each other
	FlagVersionMask     = 0xC0
	FlagVersion         = 0x40 // version 01
)

// BD bits.
const (
	BDBlockSizeMask  = 0x70
	BDBlockSizeShift = 4
	BDReservedMask   = 0x8F
)

// DefaultFlags is the FLG byte written by this package.
const DefaultFlags = FlagVersion | FlagBlockIndep | FlagContentSize

// Sizes of the fixed frame parts.
const (
	MagicSize          = 4
	DescriptorMinLen   = 2 // FLG + BD
	ContentSizeLen     = 8
	ChecksumLen        = 1
	HeaderSize         = MagicSize + DescriptorMinLen + ContentSizeLen + ChecksumLen // 15 bytes
	MinHeaderSize      = MagicSize + DescriptorMinLen + ChecksumLen                  // 7 bytes
	MaxHeaderSize      = HeaderSize
	PrefixSize         = 4
	TrailerSize        = PrefixSize
	BlockChecksumLen   = 4
	ContentChecksumLen = 4
)

// rawBit marks a stored (uncompressed) block in the block prefix.
const rawBit uint32 = 1 << 31
