package frame

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/internal/hash"
)

// Header is the decoded frame descriptor.
type Header struct {
	// Flags is the raw FLG byte.
	Flags byte
	// BlockSize is the block maximum size code from BD.
	BlockSize format.BlockSize
	// ContentSize is the total raw length; valid when HasContentSize reports true.
	ContentSize uint64
}

// NewHeader creates the header this package writes: independent blocks,
// content size present, no checksums.
func NewHeader(contentSize uint64, blockSize format.BlockSize) Header {
	return Header{
		Flags:       DefaultFlags,
		BlockSize:   blockSize,
		ContentSize: contentSize,
	}
}

// HasContentSize reports whether the frame declares its content size.
func (h Header) HasContentSize() bool {
	return h.Flags&FlagContentSize != 0
}

// HasBlockChecksum reports whether every block payload is followed by its XXH32.
func (h Header) HasBlockChecksum() bool {
	return h.Flags&FlagBlockChecksum != 0
}

// HasContentChecksum reports whether the EndMark is followed by the content XXH32.
func (h Header) HasContentChecksum() bool {
	return h.Flags&FlagContentChecksum != 0
}

// Size returns the encoded header length: 15 bytes with content size, 7 without.
func (h Header) Size() int {
	if h.HasContentSize() {
		return HeaderSize
	}

	return MinHeaderSize
}

// MaxBlockLen returns the largest raw length a block of this frame may carry.
func (h Header) MaxBlockLen() int {
	return h.BlockSize.Bytes()
}

func (h Header) bd() byte {
	return byte(h.BlockSize) << BDBlockSizeShift
}

// AppendTo appends the encoded header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, Magic)
	start := len(dst)
	dst = append(dst, h.Flags, h.bd())
	if h.HasContentSize() {
		dst = binary.LittleEndian.AppendUint64(dst, h.ContentSize)
	}

	return append(dst, hash.HeaderChecksum(dst[start:]))
}

// Bytes serializes the header.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, h.Size()))
}

// Validate checks the FLG and BD bytes for values this package cannot decode.
//
// Returns:
//   - error: ErrUnsupportedVersion, ErrUnsupportedFrame or ErrInvalidBlockSize
func (h Header) Validate() error {
	if h.Flags&FlagVersionMask != FlagVersion {
		return errs.ErrUnsupportedVersion
	}
	if h.Flags&(FlagReserved|FlagDictID) != 0 {
		return errors.Wrap(errs.ErrUnsupportedFrame, "dictionary or reserved flag set")
	}
	if h.Flags&FlagBlockIndep == 0 {
		return errors.Wrap(errs.ErrUnsupportedFrame, "linked blocks")
	}
	if !h.BlockSize.Valid() {
		return errs.ErrInvalidBlockSize
	}

	return nil
}

// WriteHeader encodes the header for a frame of contentSize raw bytes.
func WriteHeader(contentSize uint64, blockSize format.BlockSize) []byte {
	return NewHeader(contentSize, blockSize).Bytes()
}

// Parse decodes the header at the start of data.
//
// Parameters:
//   - data: Byte slice starting with the frame magic
//
// Returns:
//   - int: Number of header bytes consumed
//   - error: Format error if the magic, checksum or flags are invalid
func (h *Header) Parse(data []byte) (int, error) {
	if len(data) < MinHeaderSize {
		return 0, errs.Format(errs.ErrTruncated)
	}
	if binary.LittleEndian.Uint32(data) != Magic {
		return 0, errs.Format(errs.ErrInvalidMagic)
	}

	flags := data[MagicSize]
	size := MinHeaderSize
	if flags&FlagContentSize != 0 {
		size = HeaderSize
	}
	if len(data) < size {
		return 0, errs.Format(errs.ErrTruncated)
	}

	if err := h.decode(data[MagicSize:size]); err != nil {
		return 0, err
	}

	return size, nil
}

// decode parses the descriptor bytes FLG..HC, magic excluded.
func (h *Header) decode(desc []byte) error {
	last := len(desc) - ChecksumLen
	if hash.HeaderChecksum(desc[:last]) != desc[last] {
		return errs.Format(errs.ErrInvalidChecksum)
	}

	bd := desc[1]
	if bd&BDReservedMask != 0 {
		return errs.Format(errors.Wrap(errs.ErrUnsupportedFrame, "reserved BD bits set"))
	}

	h.Flags = desc[0]
	h.BlockSize = format.BlockSize((bd & BDBlockSizeMask) >> BDBlockSizeShift)
	h.ContentSize = 0
	if h.HasContentSize() {
		h.ContentSize = binary.LittleEndian.Uint64(desc[DescriptorMinLen:])
	}

	if err := h.Validate(); err != nil {
		return errs.Format(err)
	}

	return nil
}

// ParseHeader decodes a Header from the start of data.
//
// Returns:
//   - Header: Parsed header
//   - int: Number of bytes consumed
//   - error: Format error on corruption
func ParseHeader(data []byte) (Header, int, error) {
	var h Header
	n, err := h.Parse(data)
	if err != nil {
		return Header{}, 0, err
	}

	return h, n, nil
}

// ReadHeader reads and decodes a Header from r, consuming exactly the header bytes.
//
// Returns:
//   - Header: Parsed header
//   - error: Format error on corruption, IO error if r fails or ends early
func ReadHeader(r io.Reader) (Header, error) {
	var buf [MaxHeaderSize]byte
	if err := readFull(r, buf[:MagicSize+1]); err != nil {
		return Header{}, err
	}
	if binary.LittleEndian.Uint32(buf[:]) != Magic {
		return Header{}, errs.Format(errs.ErrInvalidMagic)
	}

	size := MinHeaderSize
	if buf[MagicSize]&FlagContentSize != 0 {
		size = HeaderSize
	}
	if err := readFull(r, buf[MagicSize+1:size]); err != nil {
		return Header{}, err
	}

	var h Header
	if err := h.decode(buf[MagicSize:size]); err != nil {
		return Header{}, err
	}

	return h, nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return errs.IO(errors.Wrap(err, "read frame"))
	}

	return nil
}
