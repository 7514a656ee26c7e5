// Package errs defines the error taxonomy shared by the lz4pipe packages.
//
// Every failure surfaced by a frame operation belongs to one of four kinds:
//
//   - ErrFormat: bad magic, checksum or block prefix while reading a frame
//   - ErrCodecFault: an engine failed to process a specific block
//   - ErrIO: a short or failed read/write on the underlying stream
//   - ErrOverflow: input or output exceeds the configured capacity
//
// Errors built by the constructors in this package match both their kind and
// their cause with errors.Is, so callers can test either:
//
//	if errors.Is(err, errs.ErrCodecFault) { ... }
//	if errors.Is(err, errs.ErrInvalidChecksum) { ... }
//
// A *Error also reports the block sequence number and raw offset when the
// failure is tied to a block, see BlockOf.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds.
var (
	ErrFormat     = errors.New("format error")
	ErrCodecFault = errors.New("codec fault")
	ErrIO         = errors.New("io error")
	ErrOverflow   = errors.New("overflow error")
)

// Format error causes.
var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidChecksum    = errors.New("invalid header checksum")
	ErrUnsupportedVersion = errors.New("unsupported frame version")
	ErrUnsupportedFrame   = errors.New("unsupported frame flags")
	ErrInvalidBlockSize   = errors.New("invalid block size")
	ErrInvalidBlockPrefix = errors.New("invalid block prefix")
	ErrBlockChecksum      = errors.New("block checksum mismatch")
	ErrContentChecksum    = errors.New("content checksum mismatch")
	ErrContentSize        = errors.New("content size mismatch")
	ErrTruncated          = errors.New("truncated frame")
)

// Programming and lifecycle errors. These are not part of the frame taxonomy.
var (
	ErrInvalidSlotState = errors.New("invalid slot state transition")
	ErrNoEngines        = errors.New("no codec engines available")
	ErrEnginesLeased    = errors.New("not enough idle codec engines")
	ErrEngineClosed     = errors.New("codec engine closed")
	ErrPipelineClosed   = errors.New("pipeline closed")
)

// NoBlock marks an *Error that is not tied to a block.
const NoBlock = -1

// Error is a classified failure of a frame operation.
type Error struct {
	kind   error
	cause  error
	seq    int
	offset int64
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.seq == NoBlock {
		return fmt.Sprintf("lz4pipe: %v: %v", e.kind, e.cause)
	}

	return fmt.Sprintf("lz4pipe: %v: block %d (offset %d): %v", e.kind, e.seq, e.offset, e.cause)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Kind returns one of ErrFormat, ErrCodecFault, ErrIO or ErrOverflow.
func (e *Error) Kind() error {
	return e.kind
}

// Cause returns the underlying failure.
func (e *Error) Cause() error {
	return e.cause
}

// Seq returns the block sequence number, or NoBlock.
func (e *Error) Seq() int {
	return e.seq
}

// Offset returns the raw offset of the failing block.
func (e *Error) Offset() int64 {
	return e.offset
}

func newError(kind, cause error, seq int, offset int64) *Error {
	if cause == nil {
		cause = kind
	}

	return &Error{kind: kind, cause: cause, seq: seq, offset: offset}
}

// Format classifies cause as a format error.
func Format(cause error) error {
	return newError(ErrFormat, cause, NoBlock, 0)
}

// FormatAt classifies cause as a format error found in block seq.
func FormatAt(seq int, offset int64, cause error) error {
	return newError(ErrFormat, cause, seq, offset)
}

// CodecFault classifies cause as an engine failure on block seq.
func CodecFault(seq int, offset int64, cause error) error {
	return newError(ErrCodecFault, cause, seq, offset)
}

// IO classifies cause as a stream failure.
func IO(cause error) error {
	return newError(ErrIO, cause, NoBlock, 0)
}

// IOAt classifies cause as a stream failure while handling block seq.
func IOAt(seq int, offset int64, cause error) error {
	return newError(ErrIO, cause, seq, offset)
}

// Overflow reports that size exceeds limit.
func Overflow(size, limit int64) error {
	return newError(ErrOverflow, errors.Newf("size %d exceeds capacity %d", size, limit), NoBlock, 0)
}

// BlockOf extracts the block sequence number and offset from err.
//
// Returns:
//   - int: Block sequence number
//   - int64: Raw offset of the block
//   - bool: false if err carries no block position
func BlockOf(err error) (int, int64, bool) {
	var e *Error
	if !errors.As(err, &e) || e.seq == NoBlock {
		return 0, 0, false
	}

	return e.seq, e.offset, true
}

// KindOf returns the kind of err, or nil if err was not built by this package.
func KindOf(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}

	return e.kind
}
