package pipeline

import (
	"context"
	stdhash "hash"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/frame"
	"github.com/arloliu/lz4pipe/internal/hash"
	"github.com/arloliu/lz4pipe/internal/pool"
	"github.com/arloliu/lz4pipe/internal/stream"
	"github.com/arloliu/lz4pipe/scheduler"
)

// DecompressStream decodes one frame read incrementally from r and writes its
// content to w in block order.
//
// The source is buffered in host-buffer chunks (WithHostBufferSize), each
// filled with reads of at most WithReadSize bytes. After every batch of K
// blocks the reader prefetches as many chunks as the batch consumed, and at
// least enough for one more maximal block. Stored blocks bypass the engines.
// r is read no further than the end of the frame plus the current prefetch.
//
// Returns:
//   - int64: Content bytes written to w
//   - error: FormatError, IOError, OverflowError or CodecFault
func (d *Decompressor) DecompressStream(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	if err := d.begin(); err != nil {
		return 0, err
	}
	defer d.end()

	n, err := d.decodeStream(ctx, w, r)
	if err != nil {
		return n, d.fail(err)
	}

	return n, nil
}

// slotBuffers holds one input and one output block buffer per slot for the
// duration of a streamed frame.
type slotBuffers struct {
	pool *pool.BlockPool
	in   []*[]byte
	out  []*[]byte
}

func newSlotBuffers(k, size int) *slotBuffers {
	b := &slotBuffers{
		pool: pool.ForSize(size),
		in:   make([]*[]byte, k),
		out:  make([]*[]byte, k),
	}
	for i := 0; i < k; i++ {
		b.in[i] = b.pool.Get()
		b.out[i] = b.pool.Get()
	}

	return b
}

func (b *slotBuffers) release() {
	for i := range b.in {
		b.pool.Put(b.in[i])
		b.pool.Put(b.out[i])
	}
}

func (d *Decompressor) decodeStream(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	ring := stream.NewRing(r, d.cfg.hostBuf, d.cfg.readSize)

	hdr, err := frame.ReadHeader(ring)
	if err != nil {
		return 0, err
	}

	declared := hdr.HasContentSize()
	size := int64(-1)
	if declared {
		if err := d.checkContentSize(hdr.ContentSize, -1); err != nil {
			return 0, err
		}
		size = int64(hdr.ContentSize)
	}

	bs := hdr.MaxBlockLen()
	span := frame.PrefixSize + bs + frame.BlockChecksumLen
	chunk := int64(ring.ChunkSize())

	bufs := newSlotBuffers(d.sched.Depth(), bs)
	defer func() {
		// Buffers of blocks still in flight are left to the garbage collector.
		if d.sched.InFlight() == 0 {
			bufs.release()
		}
	}()

	var contentHash stdhash.Hash32
	if hdr.HasContentChecksum() {
		contentHash = hash.New32()
	}

	var total int64
	blocks, raw := 0, 0
	emit := func(slot *scheduler.Slot) error {
		p := slot.Payload()
		if contentHash != nil {
			_, _ = contentHash.Write(p)
		}
		if _, err := w.Write(p); err != nil {
			blk := slot.Block()
			return errs.IOAt(blk.Seq, blk.Offset, errors.Wrap(err, "write content"))
		}
		total += int64(len(p))
		blocks++
		if slot.Raw() {
			raw++
		}
		d.cfg.metrics.Block(d.op, slot.Raw())

		return nil
	}

	if err := ring.Ensure(span); err != nil {
		return 0, errs.IO(errors.Wrap(err, "prefetch"))
	}

	var cursor int64
	prevStart := ring.Offset()
	batch, seq := 0, 0
	for {
		if declared && cursor == size {
			break
		}

		prefix, err := frame.ReadBlockPrefix(ring, bs)
		if err != nil {
			return total, positioned(err, seq, cursor)
		}
		if prefix.IsEnd() {
			break
		}

		want := 0
		if declared {
			want = int(min(int64(bs), size-cursor))
			if prefix.IsRaw() && prefix.Len() > want {
				return total, errs.FormatAt(seq, cursor, errors.Wrapf(errs.ErrContentSize,
					"stored block of %d bytes, %d remaining", prefix.Len(), want))
			}
		}

		if d.sched.Available() == 0 {
			if err := d.sched.Retire(ctx, emit); err != nil {
				return total, err
			}
		}
		slot, err := d.sched.Acquire(ctx)
		if err != nil {
			return total, err
		}

		in := (*bufs.in[slot.Index()])[:prefix.Len()]
		if _, err := io.ReadFull(ring, in); err != nil {
			return total, errs.IOAt(seq, cursor, errors.Wrap(noEOF(err), "read block"))
		}
		if hdr.HasBlockChecksum() {
			var sum [frame.BlockChecksumLen]byte
			if _, err := io.ReadFull(ring, sum[:]); err != nil {
				return total, errs.IOAt(seq, cursor, errors.Wrap(noEOF(err), "read block checksum"))
			}
			if err := frame.VerifyBlockChecksum(in, sum[:]); err != nil {
				return total, errs.FormatAt(seq, cursor, err)
			}
		}

		blk := scheduler.Block{Seq: seq, Offset: cursor, RawLen: want}
		if prefix.IsRaw() {
			blk.RawLen = prefix.Len()
			err = d.sched.SubmitBypass(slot, blk, in)
			cursor += int64(prefix.Len())
		} else {
			out := *bufs.out[slot.Index()]
			if want > 0 {
				out = out[:want]
			}
			err = d.sched.Submit(slot, blk, in, out)
			cursor += int64(len(out))
		}
		if err != nil {
			return total, err
		}
		d.tick()

		seq++
		batch++
		if batch == d.sched.Depth() {
			consumed := ring.Offset() - prevStart
			if err := ring.Prefetch(int((consumed + chunk - 1) / chunk)); err != nil {
				return total, errs.IO(errors.Wrap(err, "prefetch"))
			}
			if err := ring.Ensure(span); err != nil {
				return total, errs.IO(errors.Wrap(err, "prefetch"))
			}
			prevStart = ring.Offset()
			batch = 0
		}
	}

	if err := d.sched.Drain(ctx, emit); err != nil {
		return total, err
	}

	if declared && cursor == size {
		end, err := frame.ReadBlockPrefix(ring, bs)
		if err != nil {
			return total, positioned(err, seq, cursor)
		}
		if !end.IsEnd() {
			return total, errs.FormatAt(seq, cursor, errors.Wrap(errs.ErrContentSize, "block after declared content"))
		}
	}
	if declared && total != size {
		return total, errs.Format(errors.Wrapf(errs.ErrContentSize, "decoded %d bytes, header declares %d", total, size))
	}

	frameLen := ring.Offset()
	if contentHash != nil {
		var sum [frame.ContentChecksumLen]byte
		if _, err := io.ReadFull(ring, sum[:]); err != nil {
			return total, errs.IO(errors.Wrap(noEOF(err), "read content checksum"))
		}
		if err := frame.VerifyContentChecksum(contentHash.Sum32(), sum[:]); err != nil {
			return total, err
		}
		frameLen = ring.Offset()
	}

	d.cfg.metrics.Frame(d.op, frameLen, total)
	d.logger.Debug("frame streamed",
		zap.Int64("content_size", total), zap.Int64("frame_size", frameLen),
		zap.Int("blocks", blocks), zap.Int("raw_blocks", raw), zap.Int("reads", ring.Reads()))

	return total, nil
}

// positioned attaches the block position to prefix read failures.
func positioned(err error, seq int, offset int64) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Seq() == errs.NoBlock && e.Kind() == errs.ErrIO {
		return errs.IOAt(seq, offset, e.Cause())
	}

	return atBlock(err, seq, offset)
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
