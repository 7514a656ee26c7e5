// Package metrics exposes prometheus collectors for lz4pipe pipelines.
//
// A *Metrics is optional everywhere: every method is a no-op on a nil
// receiver, so pipelines record unconditionally.
package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/lz4pipe/format"
)

const (
	// DefaultNamespace is the metric namespace used by New("").
	DefaultNamespace = "lz4pipe"

	pipelineSubsystem = "pipeline"
	opLabelName       = "op"
)

// Metrics holds the collectors shared by every pipeline that records into it.
type Metrics struct {
	frames    *prometheus.CounterVec
	blocks    *prometheus.CounterVec
	rawBlocks *prometheus.CounterVec
	bytesIn   *prometheus.CounterVec
	bytesOut  *prometheus.CounterVec
	faults    *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
}

// New creates the pipeline collectors under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: pipelineSubsystem,
			Name:      name,
			Help:      help,
		}, []string{opLabelName})
	}

	return &Metrics{
		frames:    counter("frames_total", "Frames completed, by operation."),
		blocks:    counter("blocks_total", "Blocks emitted, by operation."),
		rawBlocks: counter("raw_blocks_total", "Blocks stored or found raw, by operation."),
		bytesIn:   counter("bytes_in_total", "Bytes consumed, by operation."),
		bytesOut:  counter("bytes_out_total", "Bytes produced, by operation."),
		faults:    counter("faults_total", "Frames aborted by an error, by operation."),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: pipelineSubsystem,
			Name:      "inflight_slots",
			Help:      "Blocks issued to engines and not yet harvested.",
		}, []string{opLabelName}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.frames, m.blocks, m.rawBlocks, m.bytesIn, m.bytesOut, m.faults, m.inFlight}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register pipeline metrics")
		}
	}

	return nil
}

// MustRegister registers every collector with reg and panics on failure.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.collectors()...)
}

// Frame records a completed frame of in consumed and out produced bytes.
func (m *Metrics) Frame(op format.Operation, in, out int64) {
	if m == nil {
		return
	}

	label := op.String()
	m.frames.WithLabelValues(label).Inc()
	m.bytesIn.WithLabelValues(label).Add(float64(in))
	m.bytesOut.WithLabelValues(label).Add(float64(out))
}

// Block records one emitted block.
func (m *Metrics) Block(op format.Operation, raw bool) {
	if m == nil {
		return
	}

	m.blocks.WithLabelValues(op.String()).Inc()
	if raw {
		m.rawBlocks.WithLabelValues(op.String()).Inc()
	}
}

// Fault records an aborted frame.
func (m *Metrics) Fault(op format.Operation) {
	if m == nil {
		return
	}

	m.faults.WithLabelValues(op.String()).Inc()
}

// InFlight sets the number of blocks currently in flight.
func (m *Metrics) InFlight(op format.Operation, n int) {
	if m == nil {
		return
	}

	m.inFlight.WithLabelValues(op.String()).Set(float64(n))
}
