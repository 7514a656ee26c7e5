package pipeline

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/engine/enginetest"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/frame"
	"github.com/arloliu/lz4pipe/metrics"
)

func TestCompressor_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ec := newEngineContext(t, 8)

	sizes := []int{0, 1, 100, 65535, 65536, 65537, 3 * 65536, 3*65536 + 1, 1<<20 + 17}
	blockSizes := []format.BlockSize{format.Block64KB, format.Block256KB}
	depths := []int{1, 2, 4}

	for _, bs := range blockSizes {
		for _, depth := range depths {
			c := newCompressor(t, ec, WithBlockSize(bs), WithDepth(depth))
			d := newDecompressor(t, ec, WithDepth(depth))

			for _, size := range sizes {
				src := mixedBytes(t, size)

				var buf bytes.Buffer
				n, err := c.Compress(ctx, &buf, src)
				require.NoError(t, err, "bs=%s depth=%d size=%d", bs, depth, size)
				require.Equal(t, int64(buf.Len()), n)

				got, err := d.DecompressBytes(ctx, buf.Bytes())
				require.NoError(t, err)
				require.Equal(t, src, got, "bs=%s depth=%d size=%d", bs, depth, size)
			}

			require.NoError(t, c.Close())
			require.NoError(t, d.Close())
		}
	}
}

func TestCompressor_EmptyFrame(t *testing.T) {
	c := newCompressor(t, newEngineContext(t, 2))

	out, err := c.CompressBytes(context.Background(), nil)
	require.NoError(t, err)

	want := []byte{
		0x04, 0x22, 0x4D, 0x18, 0x68, 0x40,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x05,
		0x00, 0x00, 0x00, 0x00,
	}
	require.Equal(t, want, out)
	require.Empty(t, pierrecDecode(t, out))
}

func TestCompressor_BlockCount(t *testing.T) {
	ctx := context.Background()
	c := newCompressor(t, newEngineContext(t, 2))

	tests := []struct {
		size   int
		blocks int
	}{
		{size: 1, blocks: 1},
		{size: 3 * 65536, blocks: 3},
		{size: 3*65536 + 1, blocks: 4},
	}

	for _, tt := range tests {
		out, err := c.CompressBytes(ctx, textBytes(tt.size))
		require.NoError(t, err)
		require.Len(t, framedBlocks(t, out), tt.blocks, "size %d", tt.size)

		stats := c.Stats()
		require.Equal(t, tt.blocks, stats.Blocks)
		require.Equal(t, int64(tt.size), stats.OriginalSize)
		require.Equal(t, int64(len(out)), stats.CompressedSize)
		require.Equal(t, format.CodecLZ4, stats.Codec)
	}
}

func TestCompressor_IncompressibleInputIsStoredRaw(t *testing.T) {
	c := newCompressor(t, newEngineContext(t, 4), WithDepth(4))
	src := randomBytes(t, 200000)

	out, err := c.CompressBytes(context.Background(), src)
	require.NoError(t, err)

	wantHeader := []byte{0x04, 0x22, 0x4D, 0x18, 0x68, 0x40, 0x40, 0x0D, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0xBD}
	require.Equal(t, wantHeader, out[:frame.HeaderSize])
	require.Len(t, out, frame.Bound(len(src), format.Block64KB))

	blocks := framedBlocks(t, out)
	require.Len(t, blocks, 4)
	for i, want := range []int{65536, 65536, 65536, 3392} {
		require.True(t, blocks[i].IsRaw(), "block %d", i)
		require.Equal(t, want, blocks[i].Len(), "block %d", i)
	}

	pos := frame.HeaderSize
	for i := 0; i < 3; i++ {
		require.Equal(t, []byte{0x00, 0x00, 0x01, 0x80}, out[pos:pos+4])
		require.Equal(t, src[i*65536:(i+1)*65536], out[pos+4:pos+4+65536])
		pos += 4 + 65536
	}
	require.Equal(t, []byte{0x40, 0x0D, 0x00, 0x80}, out[pos:pos+4])
	require.Equal(t, []byte{0, 0, 0, 0}, out[len(out)-4:])

	stats := c.Stats()
	require.Equal(t, 4, stats.RawBlocks)
	require.Equal(t, src, pierrecDecode(t, out))
}

func TestCompressor_StoreCodec(t *testing.T) {
	ec, err := engine.NewContext(engine.WithEngines(2), engine.WithCodec(compress.NewStoreCodec()))
	require.NoError(t, err)
	defer ec.Close()

	c := newCompressor(t, ec)
	src := textBytes(100000)

	out, err := c.CompressBytes(context.Background(), src)
	require.NoError(t, err)
	for _, b := range framedBlocks(t, out) {
		require.True(t, b.IsRaw())
	}
	require.Equal(t, format.CodecStore, c.Stats().Codec)
	require.Equal(t, src, pierrecDecode(t, out))
}

func TestCompressor_OrderUnderReversedCompletion(t *testing.T) {
	ctx := context.Background()
	src := mixedBytes(t, 20*65536+500)

	reference, err := newCompressor(t, newEngineContext(t, 1), WithDepth(1)).CompressBytes(ctx, src)
	require.NoError(t, err)

	rev, engines := enginetest.NewReversed(compress.NewLZ4Codec(), 4)
	ec, err := engine.NewContextWith(engines...)
	require.NoError(t, err)

	out, err := newCompressor(t, ec, WithDepth(4)).CompressBytes(ctx, src)
	require.NoError(t, err)
	require.Equal(t, reference, out, "output must not depend on completion order")
	require.Equal(t, []int{3, 2, 1, 0}, rev.CompletionOrder()[:4])
}

func TestCompressor_FaultAbortsFrameAndRecovers(t *testing.T) {
	ctx := context.Background()
	src := textBytes(6 * 65536)

	fail := true
	ec := contextWith(t, 3, func(_ int, e engine.Engine) engine.Engine {
		return &enginetest.Faulty{Inner: e, Fail: func(job engine.Job) bool {
			return fail && job.Seq == 2
		}}
	})

	c := newCompressor(t, ec, WithDepth(3), WithLogger(zaptest.NewLogger(t)))

	var buf bytes.Buffer
	_, err := c.Compress(ctx, &buf, src)
	require.ErrorIs(t, err, errs.ErrCodecFault)
	require.ErrorIs(t, err, enginetest.ErrInjected)

	seq, off, ok := errs.BlockOf(err)
	require.True(t, ok)
	require.Equal(t, 2, seq)
	require.Equal(t, int64(2*65536), off)

	fail = false
	out, err := c.CompressBytes(ctx, src)
	require.NoError(t, err)
	require.Equal(t, src, pierrecDecode(t, out))
}

func TestCompressor_Overflow(t *testing.T) {
	c := newCompressor(t, newEngineContext(t, 2), WithMaxInputSize(100))

	var buf bytes.Buffer
	_, err := c.Compress(context.Background(), &buf, make([]byte, 101))
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.Zero(t, buf.Len(), "nothing is written for rejected input")

	_, err = c.CompressStream(context.Background(), &buf, bytes.NewReader(nil), 101)
	require.ErrorIs(t, err, errs.ErrOverflow)

	out, err := c.CompressBytes(context.Background(), make([]byte, 100))
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestCompressor_CompressStream(t *testing.T) {
	ctx := context.Background()
	c := newCompressor(t, newEngineContext(t, 4), WithDepth(4), WithReadSize(4096))
	src := mixedBytes(t, 5*65536+7)

	want, err := c.CompressBytes(ctx, src)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := c.CompressStream(ctx, &buf, iotest.HalfReader(bytes.NewReader(src)), int64(len(src)))
	require.NoError(t, err)
	require.Equal(t, int64(len(want)), n)
	require.Equal(t, want, buf.Bytes())

	t.Run("short input", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := c.CompressStream(ctx, &buf, bytes.NewReader(src[:65536+10]), int64(len(src)))
		require.ErrorIs(t, err, errs.ErrIO)

		seq, _, ok := errs.BlockOf(err)
		require.True(t, ok)
		require.Equal(t, 1, seq)

		out, err := c.CompressBytes(ctx, src)
		require.NoError(t, err)
		require.Equal(t, want, out, "a failed stream must not disturb the next frame")
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := c.CompressStream(ctx, &bytes.Buffer{}, bytes.NewReader(nil), -1)
		require.Error(t, err)
	})
}

func TestCompressor_WriteFailure(t *testing.T) {
	c := newCompressor(t, newEngineContext(t, 2))
	src := textBytes(4 * 65536)

	for _, limit := range []int{0, frame.HeaderSize, frame.HeaderSize + 100} {
		_, err := c.Compress(context.Background(), &errWriter{limit: limit}, src)
		require.ErrorIs(t, err, errs.ErrIO, "limit %d", limit)
		require.ErrorIs(t, err, errWriteFailed)
	}
}

func TestCompressor_Canceled(t *testing.T) {
	c := newCompressor(t, newEngineContext(t, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compress(ctx, &bytes.Buffer{}, textBytes(10*65536))
	require.ErrorIs(t, err, context.Canceled)

	out, err := c.CompressBytes(context.Background(), textBytes(10))
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestCompressor_Lifecycle(t *testing.T) {
	ec := newEngineContext(t, 3)

	c, err := NewCompressor(ec, WithDepth(2))
	require.NoError(t, err)
	require.Equal(t, 2, c.Depth())
	require.Equal(t, format.Block64KB, c.BlockSize())
	require.Equal(t, 1, ec.Idle())

	_, err = NewCompressor(ec, WithDepth(2))
	require.ErrorIs(t, err, errs.ErrEnginesLeased)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, 3, ec.Idle())

	_, err = c.Compress(context.Background(), &bytes.Buffer{}, []byte("x"))
	require.ErrorIs(t, err, errs.ErrPipelineClosed)
}

func TestNewCompressor_InvalidOptions(t *testing.T) {
	ec := newEngineContext(t, 2)

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "block size", opt: WithBlockSize(format.BlockSize(3))},
		{name: "depth", opt: WithDepth(0)},
		{name: "max input", opt: WithMaxInputSize(0)},
		{name: "host buffer", opt: WithHostBufferSize(0)},
		{name: "read size", opt: WithReadSize(DefaultHostBufferSize + 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompressor(ec, tt.opt)
			require.Error(t, err)
			require.Equal(t, 2, ec.Idle(), "a rejected pipeline must not hold engines")
		})
	}
}

func TestCompressor_ConcurrentCallsAreSerialized(t *testing.T) {
	ctx := context.Background()
	c := newCompressor(t, newEngineContext(t, 4), WithDepth(4))

	inputs := [][]byte{textBytes(300000), mixedBytes(t, 400000), randomBytes(t, 100000), textBytes(5)}

	var wg sync.WaitGroup
	outputs := make([][]byte, len(inputs))
	errors := make([]error, len(inputs))
	for i, src := range inputs {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i], errors[i] = c.CompressBytes(ctx, src)
		}()
	}
	wg.Wait()

	for i := range inputs {
		require.NoError(t, errors[i])
		assert.Equal(t, inputs[i], pierrecDecode(t, outputs[i]))
	}
}

func TestCompressor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("test")
	require.NoError(t, m.Register(reg))

	c := newCompressor(t, newEngineContext(t, 2), WithMetrics(m))
	src := randomBytes(t, 200000)
	out, err := c.CompressBytes(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, 1.0, counterValue(t, reg, "test_pipeline_frames_total", "compress"))
	require.Equal(t, 4.0, counterValue(t, reg, "test_pipeline_blocks_total", "compress"))
	require.Equal(t, 4.0, counterValue(t, reg, "test_pipeline_raw_blocks_total", "compress"))
	require.Equal(t, float64(len(src)), counterValue(t, reg, "test_pipeline_bytes_in_total", "compress"))
	require.Equal(t, float64(len(out)), counterValue(t, reg, "test_pipeline_bytes_out_total", "compress"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, op string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "op" && l.GetValue() == op {
					if m.GetCounter() != nil {
						return m.GetCounter().GetValue()
					}

					return m.GetGauge().GetValue()
				}
			}
		}
	}

	return 0
}

func BenchmarkCompressor_Compress(b *testing.B) {
	ctx := context.Background()
	src := textBytes(4 << 20)

	for _, depth := range []int{1, 2, 4} {
		b.Run("depth="+strconv.Itoa(depth), func(b *testing.B) {
			c := newCompressor(b, newEngineContext(b, depth), WithDepth(depth))
			var buf bytes.Buffer

			b.SetBytes(int64(len(src)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				if _, err := c.Compress(ctx, &buf, src); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
