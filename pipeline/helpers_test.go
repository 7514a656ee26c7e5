package pipeline

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/frame"
)

func newEngineContext(t testing.TB, n int) *engine.Context {
	t.Helper()

	ec, err := engine.NewContext(engine.WithEngines(n))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ec.Close() })

	return ec
}

// contextWith wraps engines built by wrap around software engines.
func contextWith(t testing.TB, n int, wrap func(i int, e engine.Engine) engine.Engine) *engine.Context {
	t.Helper()

	base := newEngineContext(t, n)
	engines := make([]engine.Engine, n)
	for i := range engines {
		engines[i] = wrap(i, base.Engine(i))
	}

	ec, err := engine.NewContextWith(engines...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ec.Close() })

	return ec
}

func newCompressor(t testing.TB, ec *engine.Context, opts ...Option) *Compressor {
	t.Helper()

	c, err := NewCompressor(ec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func newDecompressor(t testing.TB, ec *engine.Context, opts ...Option) *Decompressor {
	t.Helper()

	d, err := NewDecompressor(ec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()

	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)

	return b
}

func textBytes(n int) []byte {
	line := []byte("2024-05-01T12:00:00Z INFO request served path=/api/v1/items status=200 latency=12ms\n")
	return bytes.Repeat(line, n/len(line)+1)[:n]
}

// mixedBytes alternates compressible and random 64KiB runs so frames carry
// both compressed and stored blocks.
func mixedBytes(t testing.TB, n int) []byte {
	t.Helper()

	out := make([]byte, 0, n)
	for i := 0; len(out) < n; i++ {
		run := min(65536, n-len(out))
		if i%2 == 0 {
			out = append(out, textBytes(run)...)
		} else {
			out = append(out, randomBytes(t, run)...)
		}
	}

	return out
}

// framedBlocks lists the block prefixes of a frame written without checksums.
func framedBlocks(t testing.TB, data []byte) []frame.BlockPrefix {
	t.Helper()

	hdr, pos, err := frame.ParseHeader(data)
	require.NoError(t, err)

	var blocks []frame.BlockPrefix
	for {
		p, err := frame.ParseBlockPrefix(data[pos:], hdr.MaxBlockLen())
		require.NoError(t, err)
		if p.IsEnd() {
			require.Equal(t, len(data), pos+frame.TrailerSize, "trailer must end the frame")
			return blocks
		}
		blocks = append(blocks, p)
		pos += frame.PrefixSize + p.Len()
	}
}

// firstPayloadOffset returns the offset of the first compressed payload byte.
func firstPayloadOffset(t testing.TB, data []byte) int {
	t.Helper()

	_, pos, err := frame.ParseHeader(data)
	require.NoError(t, err)
	for {
		v := binary.LittleEndian.Uint32(data[pos:])
		require.NotZero(t, v, "frame has no compressed block")
		n := int(v &^ (1 << 31))
		if v&(1<<31) == 0 {
			return pos + frame.PrefixSize
		}
		pos += frame.PrefixSize + n
	}
}

func pierrecDecode(t testing.TB, data []byte) []byte {
	t.Helper()

	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	require.NoError(t, err)

	return out
}

func pierrecEncode(t testing.TB, src []byte, opts ...lz4.Option) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	require.NoError(t, w.Apply(opts...))
	_, err := w.Write(src)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// errWriter fails every write after limit bytes.
type errWriter struct {
	limit int
	n     int
}

var errWriteFailed = io.ErrClosedPipe

func (w *errWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errWriteFailed
	}
	w.n += len(p)

	return len(p), nil
}
