// Package lz4pipe compresses and decompresses data in the LZ4 frame format,
// overlapping block codec work across several engines while emitting blocks
// strictly in order.
//
// # Core Features
//
//   - Standard LZ4 frames: independent blocks, 64KB to 4MB block sizes, content size in the header
//   - Incompressible blocks stored raw, never expanded beyond the frame overhead
//   - K-deep overlap of block codec jobs with in-order output
//   - Buffered and incremental (non-seekable reader) decompression
//   - Reads frames from other LZ4 writers, including block and content checksums
//
// # Basic Usage
//
// The functions of this package create a short-lived engine context per call:
//
//	frame, err := lz4pipe.Compress(ctx, data)
//	...
//	data, err = lz4pipe.Decompress(ctx, frame)
//
// # Package Structure
//
// Long-running programs create one engine.Context and reuse pipelines from
// the pipeline package:
//
//	ec, _ := engine.NewContext(engine.WithEngines(runtime.GOMAXPROCS(0)))
//	defer ec.Close()
//
//	c, _ := pipeline.NewCompressor(ec, pipeline.WithDepth(4), pipeline.WithBlockSize(format.Block256KB))
//	defer c.Close()
//
//	n, err := c.Compress(ctx, w, data)
package lz4pipe

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/internal/hash"
	"github.com/arloliu/lz4pipe/pipeline"
)

// ErrMismatch reports that a frame does not decode to the expected content.
var ErrMismatch = errors.New("lz4pipe: decoded content differs from source")

// Compress returns data as a single LZ4 frame.
//
// Parameters:
//   - ctx: Bounds the whole call
//   - data: Frame content
//   - opts: Pipeline options such as pipeline.WithBlockSize and pipeline.WithDepth
//
// Returns:
//   - []byte: Encoded frame, nil on error
//   - error: Overflow, IO or codec fault error
//
// Example:
//
//	frame, err := lz4pipe.Compress(ctx, data, pipeline.WithBlockSize(format.Block1MB))
func Compress(ctx context.Context, data []byte, opts ...pipeline.Option) ([]byte, error) {
	var out []byte
	err := withEngines(opts, func(ec *engine.Context) error {
		c, err := pipeline.NewCompressor(ec, opts...)
		if err != nil {
			return err
		}
		defer c.Close()

		out, err = c.CompressBytes(ctx, data)

		return err
	})

	return out, err
}

// CompressTo writes r's size bytes to w as a single LZ4 frame.
func CompressTo(ctx context.Context, w io.Writer, r io.Reader, size int64, opts ...pipeline.Option) (int64, error) {
	var n int64
	err := withEngines(opts, func(ec *engine.Context) error {
		c, err := pipeline.NewCompressor(ec, opts...)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err = c.CompressStream(ctx, w, r, size)

		return err
	})

	return n, err
}

// Decompress decodes the LZ4 frame at the start of data.
func Decompress(ctx context.Context, data []byte, opts ...pipeline.Option) ([]byte, error) {
	var out []byte
	err := withEngines(opts, func(ec *engine.Context) error {
		d, err := pipeline.NewDecompressor(ec, opts...)
		if err != nil {
			return err
		}
		defer d.Close()

		out, err = d.DecompressBytes(ctx, data)

		return err
	})

	return out, err
}

// DecompressTo decodes one LZ4 frame read from r and writes its content to w.
func DecompressTo(ctx context.Context, w io.Writer, r io.Reader, opts ...pipeline.Option) (int64, error) {
	var n int64
	err := withEngines(opts, func(ec *engine.Context) error {
		d, err := pipeline.NewDecompressor(ec, opts...)
		if err != nil {
			return err
		}
		defer d.Close()

		n, err = d.DecompressStream(ctx, w, r)

		return err
	})

	return n, err
}

// Verify decodes frame and checks that it reproduces src, comparing XXH64
// digests of both.
//
// Returns:
//   - error: ErrMismatch if the content differs, or the decoding error
func Verify(ctx context.Context, src, frame []byte, opts ...pipeline.Option) error {
	got, err := Decompress(ctx, frame, opts...)
	if err != nil {
		return err
	}

	if len(got) != len(src) || hash.Digest(got) != hash.Digest(src) {
		return errors.Wrapf(ErrMismatch, "decoded %d bytes (xxh64 %016x), source %d bytes (xxh64 %016x)",
			len(got), hash.Digest(got), len(src), hash.Digest(src))
	}

	return nil
}

// Digest returns the XXH64 digest used by Verify.
func Digest(data []byte) uint64 {
	return hash.Digest(data)
}

func withEngines(opts []pipeline.Option, fn func(ec *engine.Context) error) error {
	ec, err := engine.NewContext(engine.WithEngines(pipeline.DepthOf(opts...)))
	if err != nil {
		return err
	}

	return errors.CombineErrors(fn(ec), ec.Close())
}
