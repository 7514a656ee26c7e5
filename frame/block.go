package frame

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

// BlockKind discriminates the BlockPrefix tagged union.
type BlockKind uint8

const (
	BlockCompressed BlockKind = 0x1 // BlockCompressed is an LZ4-compressed payload.
	BlockRaw        BlockKind = 0x2 // BlockRaw is a payload stored verbatim.
	BlockEnd        BlockKind = 0x3 // BlockEnd is the EndMark terminating the block sequence.
)

func (k BlockKind) String() string {
	switch k {
	case BlockCompressed:
		return "Compressed"
	case BlockRaw:
		return "Raw"
	case BlockEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// BlockPrefix is the decoded 4-byte prefix in front of every block.
//
// It is one of Compressed(n), Raw(n) or EndMark. Code outside this file works
// with Kind and Len only and never with the prefix bits.
type BlockPrefix struct {
	kind   BlockKind
	length int
}

// EndMark terminates the block sequence of a frame.
var EndMark = BlockPrefix{kind: BlockEnd}

// Compressed returns the prefix of a compressed block carrying n payload bytes.
func Compressed(n int) BlockPrefix {
	return BlockPrefix{kind: BlockCompressed, length: n}
}

// Raw returns the prefix of a stored block carrying n raw bytes.
func Raw(n int) BlockPrefix {
	return BlockPrefix{kind: BlockRaw, length: n}
}

// Kind returns the variant of the prefix.
func (p BlockPrefix) Kind() BlockKind {
	return p.kind
}

// Len returns the number of payload bytes following the prefix.
func (p BlockPrefix) Len() int {
	return p.length
}

// IsRaw reports whether the payload is stored verbatim.
func (p BlockPrefix) IsRaw() bool {
	return p.kind == BlockRaw
}

// IsEnd reports whether p is the EndMark.
func (p BlockPrefix) IsEnd() bool {
	return p.kind == BlockEnd
}

// Append appends the wire encoding of p to dst.
//
// The prefix is a little-endian uint32 holding the payload length, with bit 31
// set for stored blocks. A stored block of a full 64KB/256KB/1MB/4MB frame
// block therefore reads 00 00 {01,04,10,40} 80 on the wire, while a shorter
// stored block reads as three length bytes followed by 0x80. The EndMark is
// four zero bytes.
func (p BlockPrefix) Append(dst []byte) []byte {
	var v uint32
	switch p.kind {
	case BlockCompressed:
		v = uint32(p.length)
	case BlockRaw:
		v = uint32(p.length) | rawBit
	case BlockEnd:
		v = 0
	}

	return binary.LittleEndian.AppendUint32(dst, v)
}

// WriteBlockPrefix encodes the prefix for a block of length payload bytes.
func WriteBlockPrefix(length int, isRaw bool) []byte {
	p := Compressed(length)
	if isRaw {
		p = Raw(length)
	}

	return p.Append(make([]byte, 0, PrefixSize))
}

// WriteTrailer returns the EndMark closing a frame.
func WriteTrailer() []byte {
	return EndMark.Append(make([]byte, 0, TrailerSize))
}

// ParseBlockPrefix decodes a block prefix.
//
// Parameters:
//   - data: At least PrefixSize bytes
//   - maxLen: Block maximum size of the frame; longer payloads are rejected
//
// Returns:
//   - BlockPrefix: Decoded prefix
//   - error: Format error if data is short or the length is out of range
func ParseBlockPrefix(data []byte, maxLen int) (BlockPrefix, error) {
	if len(data) < PrefixSize {
		return BlockPrefix{}, errs.Format(errs.ErrTruncated)
	}

	v := binary.LittleEndian.Uint32(data)
	if v == 0 {
		return EndMark, nil
	}

	p := Compressed(int(v &^ rawBit))
	if v&rawBit != 0 {
		p = Raw(int(v &^ rawBit))
	}

	if p.length == 0 || p.length > maxLen {
		return BlockPrefix{}, errs.Format(errors.Wrapf(errs.ErrInvalidBlockPrefix,
			"%s block of %d bytes, block maximum %d", p.kind, p.length, maxLen))
	}

	return p, nil
}

// ReadBlockPrefix reads and decodes a block prefix from r.
func ReadBlockPrefix(r io.Reader, maxLen int) (BlockPrefix, error) {
	var buf [PrefixSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return BlockPrefix{}, err
	}

	return ParseBlockPrefix(buf[:], maxLen)
}

// Bound returns the largest frame a writer that stores incompressible blocks
// raw can produce for contentSize bytes in blocks of bs.
func Bound(contentSize int, bs format.BlockSize) int {
	blockLen := bs.Bytes()
	if blockLen == 0 {
		return 0
	}
	blocks := (contentSize + blockLen - 1) / blockLen

	return HeaderSize + contentSize + blocks*PrefixSize + TrailerSize
}

// IsEndMark reports whether data starts with the EndMark.
func IsEndMark(data []byte) bool {
	return len(data) >= PrefixSize && binary.LittleEndian.Uint32(data) == 0
}
