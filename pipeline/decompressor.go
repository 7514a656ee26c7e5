package pipeline

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/frame"
	"github.com/arloliu/lz4pipe/internal/hash"
	"github.com/arloliu/lz4pipe/internal/options"
	"github.com/arloliu/lz4pipe/internal/pool"
	"github.com/arloliu/lz4pipe/scheduler"
)

// Decompressor decodes LZ4 frames using the engines it leased.
//
// Besides frames written by a Compressor it reads frames from other LZ4
// writers as long as their blocks are independent: the content size may be
// absent and block or content checksums present. Every block but the last
// must carry a full block of content.
type Decompressor struct {
	*core
}

// NewDecompressor leases WithDepth engines from ec. WithBlockSize is ignored:
// the block size of each frame comes from its header.
func NewDecompressor(ec *engine.Context, opts ...Option) (*Decompressor, error) {
	cfg := defaultConfig()
	if err := options.Build(cfg, opts...); err != nil {
		return nil, err
	}

	c, err := newCore(format.OpDecompress, ec, cfg)
	if err != nil {
		return nil, err
	}

	return &Decompressor{core: c}, nil
}

// Decompress decodes the frame at the start of src into dst.
//
// Stored blocks are copied straight to their block-aligned offset in dst;
// compressed blocks are decoded by the engines into their window of dst.
// Bytes after the frame are ignored.
//
// Returns:
//   - int: Content length written to dst
//   - error: FormatError, OverflowError if the content does not fit dst, or CodecFault
func (d *Decompressor) Decompress(ctx context.Context, dst, src []byte) (int, error) {
	if err := d.begin(); err != nil {
		return 0, err
	}
	defer d.end()

	n, _, err := d.decode(ctx, dst, src)
	if err != nil {
		return 0, d.fail(err)
	}

	return n, nil
}

// DecompressBytes decodes the frame at the start of src into a new buffer.
func (d *Decompressor) DecompressBytes(ctx context.Context, src []byte) ([]byte, error) {
	hdr, _, err := frame.ParseHeader(src)
	if err != nil {
		return nil, err
	}

	if !hdr.HasContentSize() {
		bb := pool.GetFrameBuffer()
		defer pool.PutFrameBuffer(bb)

		if _, err := d.DecompressStream(ctx, bb, bytes.NewReader(src)); err != nil {
			return nil, err
		}

		out := make([]byte, bb.Len())
		copy(out, bb.Bytes())

		return out, nil
	}

	if hdr.ContentSize > uint64(d.cfg.maxInput) {
		return nil, errs.Overflow(int64(min(hdr.ContentSize, 1<<63-1)), d.cfg.maxInput)
	}

	dst := make([]byte, hdr.ContentSize)
	n, err := d.Decompress(ctx, dst, src)
	if err != nil {
		return nil, err
	}

	return dst[:n], nil
}

func (d *Decompressor) decode(ctx context.Context, dst, src []byte) (int, int, error) {
	hdr, pos, err := frame.ParseHeader(src)
	if err != nil {
		return 0, 0, err
	}

	declared := hdr.HasContentSize()
	size := int64(-1)
	if declared {
		if err := d.checkContentSize(hdr.ContentSize, int64(len(dst))); err != nil {
			return 0, 0, err
		}
		size = int64(hdr.ContentSize)
	}

	bs := hdr.MaxBlockLen()
	total := 0
	blocks, raw := 0, 0
	emit := func(slot *scheduler.Slot) error {
		blk := slot.Block()
		total = max(total, int(blk.Offset)+len(slot.Payload()))
		blocks++
		d.cfg.metrics.Block(d.op, false)

		return nil
	}

	// A last block of unknown length decoded into a window clipped by
	// len(dst) fails in the codec when the content does not fit.
	clipped := -1
	overflowed := func(err error) error {
		if seq, _, ok := errs.BlockOf(err); ok && seq == clipped && errs.KindOf(err) == errs.ErrCodecFault {
			return errs.Overflow(int64(len(dst))+1, int64(len(dst)))
		}

		return err
	}

	cursor := 0
	seq := 0
	for {
		if declared && int64(cursor) == size {
			break
		}

		prefix, err := frame.ParseBlockPrefix(src[pos:], bs)
		if err != nil {
			return 0, 0, atBlock(err, seq, int64(cursor))
		}
		pos += frame.PrefixSize
		if prefix.IsEnd() {
			pos -= frame.PrefixSize
			break
		}

		if len(src)-pos < prefix.Len() {
			return 0, 0, errs.FormatAt(seq, int64(cursor), errs.ErrTruncated)
		}
		payload := src[pos : pos+prefix.Len()]
		pos += prefix.Len()

		if hdr.HasBlockChecksum() {
			if err := frame.VerifyBlockChecksum(payload, src[pos:]); err != nil {
				return 0, 0, errs.FormatAt(seq, int64(cursor), err)
			}
			pos += frame.BlockChecksumLen
		}

		// Declared frames end where the content does. Otherwise a block
		// followed by the EndMark is the last one and may be short.
		want := bs
		last := false
		if declared {
			want = int(min(int64(bs), size-int64(cursor)))
		} else if len(src)-pos >= frame.PrefixSize && frame.IsEndMark(src[pos:]) {
			last = true
		}

		if prefix.IsRaw() {
			mustFill := declared || !last
			if prefix.Len() > want || mustFill && prefix.Len() != want {
				return 0, 0, errs.FormatAt(seq, int64(cursor), errors.Wrapf(errs.ErrContentSize,
					"stored block of %d bytes, want %d", prefix.Len(), want))
			}
			if cursor+prefix.Len() > len(dst) {
				return 0, 0, errs.Overflow(int64(cursor+prefix.Len()), int64(len(dst)))
			}
			copy(dst[cursor:], payload)
			cursor += prefix.Len()
			total = max(total, cursor)
			blocks++
			raw++
			d.cfg.metrics.Block(d.op, true)
			seq++

			continue
		}

		window := cursor + want
		expect := want
		if last {
			if window > len(dst) {
				window = len(dst)
				clipped = seq
			}
			expect = 0
		}
		if window > len(dst) || window == cursor {
			return 0, 0, errs.Overflow(int64(cursor+want), int64(len(dst)))
		}

		if d.sched.Available() == 0 {
			if err := d.sched.Retire(ctx, emit); err != nil {
				return 0, 0, overflowed(err)
			}
		}
		blk := scheduler.Block{Seq: seq, Offset: int64(cursor), RawLen: expect}
		if _, err := d.sched.Issue(ctx, blk, payload, dst[cursor:window]); err != nil {
			return 0, 0, overflowed(err)
		}
		d.tick()

		cursor = window
		seq++
	}

	if err := d.sched.Drain(ctx, emit); err != nil {
		return 0, 0, overflowed(err)
	}

	end, err := frame.ParseBlockPrefix(src[pos:], bs)
	if err != nil {
		return 0, 0, atBlock(err, seq, int64(cursor))
	}
	if !end.IsEnd() {
		return 0, 0, errs.FormatAt(seq, int64(cursor), errors.Wrap(errs.ErrContentSize, "block after declared content"))
	}
	pos += frame.TrailerSize

	if declared && int64(total) != size {
		return 0, 0, errs.Format(errors.Wrapf(errs.ErrContentSize, "decoded %d bytes, header declares %d", total, size))
	}
	if hdr.HasContentChecksum() {
		if err := frame.VerifyContentChecksum(hash.Checksum32(dst[:total]), src[pos:]); err != nil {
			return 0, 0, err
		}
		pos += frame.ContentChecksumLen
	}

	d.cfg.metrics.Frame(d.op, int64(pos), int64(total))
	d.logger.Debug("frame decompressed",
		zap.Int("content_size", total), zap.Int("frame_size", pos),
		zap.Int("blocks", blocks), zap.Int("raw_blocks", raw))

	return total, pos, nil
}

func (d *Decompressor) checkContentSize(size uint64, capacity int64) error {
	limit := d.cfg.maxInput
	if capacity >= 0 && capacity < limit {
		limit = capacity
	}
	if size > uint64(limit) {
		return errs.Overflow(int64(min(size, 1<<63-1)), limit)
	}

	return nil
}

// atBlock attaches the block position to an unpositioned format error.
func atBlock(err error, seq int, offset int64) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Seq() == errs.NoBlock && e.Kind() == errs.ErrFormat {
		return errs.FormatAt(seq, offset, e.Cause())
	}

	return err
}
