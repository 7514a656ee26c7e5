package stream

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestReadFull(t *testing.T) {
	data := randomBytes(t, 10_000)

	t.Run("bounded reads", func(t *testing.T) {
		src := &recordingReader{r: iotest.HalfReader(bytes.NewReader(data))}
		buf := make([]byte, 9000)

		n, err := ReadFull(src, buf, 512)
		require.NoError(t, err)
		require.Equal(t, 9000, n)
		require.Equal(t, data[:9000], buf)
		require.LessOrEqual(t, src.maxRead, 512)
	})

	t.Run("unbounded", func(t *testing.T) {
		buf := make([]byte, 10_000)
		n, err := ReadFull(iotest.OneByteReader(bytes.NewReader(data)), buf, 0)
		require.NoError(t, err)
		require.Equal(t, 10_000, n)
	})

	t.Run("eof with data", func(t *testing.T) {
		buf := make([]byte, 10_000)
		n, err := ReadFull(iotest.DataErrReader(bytes.NewReader(data)), buf, 4096)
		require.NoError(t, err)
		require.Equal(t, 10_000, n)
	})

	t.Run("short", func(t *testing.T) {
		buf := make([]byte, 20_000)
		n, err := ReadFull(bytes.NewReader(data), buf, 4096)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		require.Equal(t, 10_000, n)
	})

	t.Run("empty", func(t *testing.T) {
		n, err := ReadFull(bytes.NewReader(nil), make([]byte, 4), 2)
		require.ErrorIs(t, err, io.EOF)
		require.Zero(t, n)
	})

	t.Run("no progress", func(t *testing.T) {
		_, err := ReadFull(zeroReader{}, make([]byte, 4), 2)
		require.ErrorIs(t, err, io.ErrNoProgress)
	})
}
