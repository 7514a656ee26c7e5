package engine

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

// Stats is a snapshot of an engine's job counters.
type Stats struct {
	Submitted int64
	Completed int64
	Faulted   int64
}

// SoftwareEngine runs a compress.Codec on a shared ants worker pool.
type SoftwareEngine struct {
	id     int
	codec  compress.Codec
	pool   *ants.Pool
	closed *atomic.Bool

	submitted *atomic.Int64
	completed *atomic.Int64
	faulted   *atomic.Int64
}

var _ Engine = (*SoftwareEngine)(nil)

// NewSoftwareEngine creates an engine that executes jobs with codec on pool.
//
// Parameters:
//   - id: Engine index, used in logs
//   - codec: Block codec shared by all engines of a context
//   - pool: Worker pool; size it to at least the number of engines
func NewSoftwareEngine(id int, codec compress.Codec, pool *ants.Pool) *SoftwareEngine {
	return &SoftwareEngine{
		id:        id,
		codec:     codec,
		pool:      pool,
		closed:    atomic.NewBool(false),
		submitted: atomic.NewInt64(0),
		completed: atomic.NewInt64(0),
		faulted:   atomic.NewInt64(0),
	}
}

// ID returns the engine index.
func (e *SoftwareEngine) ID() int {
	return e.id
}

// Codec returns the block codec the engine runs.
func (e *SoftwareEngine) Codec() compress.Codec {
	return e.codec
}

// Stats returns the engine's job counters.
func (e *SoftwareEngine) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Faulted:   e.faulted.Load(),
	}
}

// Submit schedules job on the worker pool.
//
// Returns:
//   - *Handle: Handle completed by the worker
//   - error: ErrEngineClosed after Close, or the pool submission error
func (e *SoftwareEngine) Submit(job Job) (*Handle, error) {
	if e.closed.Load() {
		return nil, errs.ErrEngineClosed
	}

	h := NewHandle(job)
	e.submitted.Inc()
	if err := e.pool.Submit(func() { e.run(h) }); err != nil {
		e.submitted.Dec()
		return nil, errors.Wrapf(err, "engine %d: submit block %d", e.id, job.Seq)
	}

	return h, nil
}

// Poll reports whether h has completed.
func (e *SoftwareEngine) Poll(h *Handle) bool {
	return h.Ready()
}

// Collect waits for h to complete.
func (e *SoftwareEngine) Collect(ctx context.Context, h *Handle) (int, error) {
	return h.Wait(ctx)
}

// Close stops accepting new jobs. Jobs already submitted still complete.
func (e *SoftwareEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *SoftwareEngine) run(h *Handle) {
	n, err := e.execute(h.job)
	if err != nil {
		e.faulted.Inc()
	}
	e.completed.Inc()
	h.Complete(n, err)
}

func (e *SoftwareEngine) execute(job Job) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("engine %d: codec panic: %v", e.id, r)
		}
	}()

	switch job.Op {
	case format.OpCompress:
		return e.codec.CompressBlock(job.Dst, job.Src)
	case format.OpDecompress:
		return e.codec.DecompressBlock(job.Dst, job.Src)
	default:
		return 0, fmt.Errorf("engine %d: invalid operation %s", e.id, job.Op)
	}
}
