package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/lz4pipe/format"
)

func TestMetrics_Record(t *testing.T) {
	m := New("test")

	m.Frame(format.OpCompress, 100, 40)
	m.Frame(format.OpCompress, 50, 60)
	m.Block(format.OpCompress, false)
	m.Block(format.OpCompress, true)
	m.Block(format.OpDecompress, true)
	m.Fault(format.OpDecompress)
	m.InFlight(format.OpCompress, 3)

	compress := format.OpCompress.String()
	decompress := format.OpDecompress.String()

	require.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues(compress)))
	require.Equal(t, 150.0, testutil.ToFloat64(m.bytesIn.WithLabelValues(compress)))
	require.Equal(t, 100.0, testutil.ToFloat64(m.bytesOut.WithLabelValues(compress)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.blocks.WithLabelValues(compress)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rawBlocks.WithLabelValues(compress)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rawBlocks.WithLabelValues(decompress)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues(decompress)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.inFlight.WithLabelValues(compress)))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.Frame(format.OpCompress, 1, 1)
		m.Block(format.OpCompress, true)
		m.Fault(format.OpCompress)
		m.InFlight(format.OpCompress, 1)
	})
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("")

	require.NoError(t, m.Register(reg))
	require.Error(t, m.Register(reg), "registering twice must fail")

	m.Frame(format.OpDecompress, 1, 2)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "lz4pipe_pipeline_frames_total")

	require.Panics(t, func() { m.MustRegister(reg) })
}
