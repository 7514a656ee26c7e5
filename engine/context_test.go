package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

func TestNewContext(t *testing.T) {
	c, err := NewContext(WithEngines(3), WithCodec(compress.NewLZ4HCCodec(compress.DefaultHCLevel)), WithContextLogger(zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, 3, c.Size())
	require.Equal(t, 3, c.Idle())

	src := bytes.Repeat([]byte("0123456789"), 1000)
	dst := make([]byte, compress.CompressBound(len(src)))
	h, err := c.Engine(2).Submit(Job{Op: format.OpCompress, Src: src, Dst: dst})
	require.NoError(t, err)

	n, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.Greater(t, n, 0)
}

func TestNewContext_InvalidOptions(t *testing.T) {
	_, err := NewContext(WithEngines(0))
	require.Error(t, err)

	_, err = NewContext(WithCodec(nil))
	require.Error(t, err)
}

func TestNewContextWith(t *testing.T) {
	_, err := NewContextWith()
	require.ErrorIs(t, err, errs.ErrNoEngines)

	pool := newTestPool(t)
	e0 := NewSoftwareEngine(0, compress.NewLZ4Codec(), pool)
	e1 := NewSoftwareEngine(1, compress.NewLZ4Codec(), pool)

	c, err := NewContextWith(e0, e1)
	require.NoError(t, err)
	require.Equal(t, 2, c.Size())
	require.Same(t, e1, c.Engine(1))

	require.NoError(t, c.Close())
	_, err = e0.Submit(Job{Op: format.OpCompress})
	require.ErrorIs(t, err, errs.ErrEngineClosed)
}

func TestContext_AcquireExclusive(t *testing.T) {
	c, err := NewContext(WithEngines(4))
	require.NoError(t, err)
	defer c.Close()

	a, err := c.Acquire(3)
	require.NoError(t, err)
	require.Equal(t, 3, a.Size())
	require.Equal(t, 1, c.Idle())

	_, err = c.Acquire(2)
	require.ErrorIs(t, err, errs.ErrEnginesLeased)
	require.Equal(t, 1, c.Idle(), "a failed acquire must not lease anything")

	b, err := c.Acquire(1)
	require.NoError(t, err)
	require.Zero(t, c.Idle())

	for _, ea := range a.Engines() {
		for _, eb := range b.Engines() {
			require.NotSame(t, ea, eb)
		}
	}

	a.Release()
	a.Release()
	require.Equal(t, 3, c.Idle())

	b.Release()
	require.Equal(t, 4, c.Idle())
}

func TestContext_AcquireInvalid(t *testing.T) {
	c, err := NewContext(WithEngines(1))
	require.NoError(t, err)

	_, err = c.Acquire(0)
	require.Error(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Acquire(1)
	require.ErrorIs(t, err, errs.ErrEngineClosed)
}
