package pipeline

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/frame"
	"github.com/arloliu/lz4pipe/internal/options"
	"github.com/arloliu/lz4pipe/internal/pool"
	"github.com/arloliu/lz4pipe/internal/stream"
	"github.com/arloliu/lz4pipe/scheduler"
)

// Compressor writes LZ4 frames using the engines it leased.
type Compressor struct {
	*core
	stats compress.CompressionStats
}

// NewCompressor leases WithDepth engines from ec and prepares their slots.
//
// Returns:
//   - *Compressor: Compressor owning the lease until Close
//   - error: Invalid options, or errs.ErrEnginesLeased if ec has too few idle engines
func NewCompressor(ec *engine.Context, opts ...Option) (*Compressor, error) {
	cfg := defaultConfig()
	if err := options.Build(cfg, opts...); err != nil {
		return nil, err
	}

	bs := cfg.blockSize.Bytes()
	c, err := newCore(format.OpCompress, ec, cfg, scheduler.WithSlotBuffers(bs, compress.CompressBound(bs)))
	if err != nil {
		return nil, err
	}

	return &Compressor{core: c}, nil
}

// BlockSize returns the block size code written into every frame.
func (c *Compressor) BlockSize() format.BlockSize {
	return c.cfg.blockSize
}

// Stats returns the statistics of the last frame completed successfully.
func (c *Compressor) Stats() compress.CompressionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// Compress writes src to w as one frame.
//
// Parameters:
//   - ctx: Bounds waits on the slot pool and engine results
//   - w: Frame destination; on error its content is untrusted
//   - src: Frame content, at most WithMaxInputSize bytes
//
// Returns:
//   - int64: Number of frame bytes written
//   - error: OverflowError, IOError on write failure or CodecFault
func (c *Compressor) Compress(ctx context.Context, w io.Writer, src []byte) (int64, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.end()

	size := int64(len(src))
	if size > c.cfg.maxInput {
		return 0, c.fail(errs.Overflow(size, c.cfg.maxInput))
	}

	return c.frame(ctx, w, size, func(_ *scheduler.Slot, blk scheduler.Block) ([]byte, error) {
		return src[blk.Offset : blk.Offset+int64(blk.RawLen)], nil
	})
}

// CompressStream reads exactly size bytes from r and writes them to w as one frame.
//
// Reads into each slot's staging buffer are issued in pieces of at most
// WithReadSize bytes. A reader ending before size bytes fails with an IOError.
func (c *Compressor) CompressStream(ctx context.Context, w io.Writer, r io.Reader, size int64) (int64, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.end()

	if size < 0 {
		return 0, errors.Newf("negative content size %d", size)
	}
	if size > c.cfg.maxInput {
		return 0, c.fail(errs.Overflow(size, c.cfg.maxInput))
	}

	return c.frame(ctx, w, size, func(slot *scheduler.Slot, blk scheduler.Block) ([]byte, error) {
		buf := slot.In()[:blk.RawLen]
		if _, err := stream.ReadFull(r, buf, c.cfg.readSize); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return nil, errs.IOAt(blk.Seq, blk.Offset, errors.Wrap(err, "read block"))
		}

		return buf, nil
	})
}

// CompressBytes returns src as a frame, or nil on failure.
func (c *Compressor) CompressBytes(ctx context.Context, src []byte) ([]byte, error) {
	bb := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(bb)

	bb.Grow(frame.Bound(len(src), c.cfg.blockSize))
	if _, err := c.Compress(ctx, bb, src); err != nil {
		return nil, err
	}

	return append([]byte(nil), bb.Bytes()...), nil
}

// blockSource returns the raw bytes of blk. The slice must stay valid until
// the block is written.
type blockSource func(slot *scheduler.Slot, blk scheduler.Block) ([]byte, error)

func (c *Compressor) frame(ctx context.Context, w io.Writer, size int64, next blockSource) (int64, error) {
	bs := int64(c.cfg.blockSize.Bytes())
	fw := &frameWriter{w: w}
	stats := compress.CompressionStats{OriginalSize: size}

	if err := fw.write(frame.WriteHeader(uint64(size), c.cfg.blockSize)); err != nil {
		return fw.n, c.fail(err)
	}

	var prefix [frame.PrefixSize]byte
	emit := func(slot *scheduler.Slot) error {
		payload := slot.Payload()
		p := frame.Compressed(len(payload))
		if slot.Raw() {
			p = frame.Raw(len(payload))
			stats.RawBlocks++
		}
		stats.Blocks++
		c.cfg.metrics.Block(c.op, slot.Raw())

		if err := fw.write(p.Append(prefix[:0])); err != nil {
			return err
		}

		return fw.write(payload)
	}

	blocks := int((size + bs - 1) / bs)
	for seq := 0; seq < blocks; seq++ {
		if c.sched.Available() == 0 {
			if err := c.sched.Retire(ctx, emit); err != nil {
				return fw.n, c.fail(err)
			}
		}

		off := int64(seq) * bs
		blk := scheduler.Block{Seq: seq, Offset: off, RawLen: int(min(bs, size-off))}

		slot, err := c.sched.Acquire(ctx)
		if err != nil {
			return fw.n, c.fail(err)
		}
		src, err := next(slot, blk)
		if err != nil {
			return fw.n, c.fail(err)
		}
		if err := c.sched.Submit(slot, blk, src, slot.Out()); err != nil {
			return fw.n, c.fail(err)
		}
		c.tick()
	}

	if err := c.sched.Drain(ctx, emit); err != nil {
		return fw.n, c.fail(err)
	}
	if err := fw.write(frame.WriteTrailer()); err != nil {
		return fw.n, c.fail(err)
	}

	stats.Codec = c.codecType()
	stats.CompressedSize = fw.n
	c.stats = stats
	c.cfg.metrics.Frame(c.op, size, fw.n)
	c.logger.Debug("frame compressed",
		zap.Int64("content_size", size), zap.Int64("frame_size", fw.n),
		zap.Int("blocks", stats.Blocks), zap.Int("raw_blocks", stats.RawBlocks))

	return fw.n, nil
}

func (c *Compressor) codecType() format.CodecType {
	if se, ok := c.lease.Engines()[0].(*engine.SoftwareEngine); ok {
		return se.Codec().Type()
	}

	return 0
}

// frameWriter counts written bytes and classifies write failures.
type frameWriter struct {
	w io.Writer
	n int64
}

func (fw *frameWriter) write(p []byte) error {
	n, err := fw.w.Write(p)
	fw.n += int64(n)
	if err != nil {
		return errs.IO(errors.Wrap(err, "write frame"))
	}
	if n < len(p) {
		return errs.IO(io.ErrShortWrite)
	}

	return nil
}
