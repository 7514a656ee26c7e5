// Package engine defines the asynchronous block codec engine contract and a
// software implementation backed by a worker pool.
//
// An Engine accepts a Job, returns a Handle immediately and completes the job
// in the background:
//
//	h, err := eng.Submit(engine.Job{Op: format.OpCompress, Seq: 0, Src: raw, Dst: out})
//	...
//	if eng.Poll(h) { ... }            // non-blocking
//	n, err := eng.Collect(ctx, h)     // blocks until h completes
//
// Engines are owned by a Context, which leases them exclusively to one
// pipeline at a time. Hardware-backed engines plug in through the same
// interface via NewContextWith.
package engine

import (
	"context"
	"sync"

	"github.com/arloliu/lz4pipe/format"
)

// Job is one block handed to an engine.
type Job struct {
	// Op selects compression or decompression.
	Op format.Operation
	// Seq is the block sequence number, used for fault reporting.
	Seq int
	// Src is the input block. The engine must not retain it after completion.
	Src []byte
	// Dst receives the output. For compression it should hold
	// compress.CompressBound(len(Src)) bytes; for decompression the expected raw length.
	Dst []byte
}

// Handle is a one-shot future for a submitted Job.
type Handle struct {
	job  Job
	done chan struct{}
	once sync.Once
	n    int
	err  error
}

// NewHandle creates a pending handle for job. Engine implementations call
// Complete exactly once when the job finishes.
func NewHandle(job Job) *Handle {
	return &Handle{job: job, done: make(chan struct{})}
}

// Job returns the job the handle tracks.
func (h *Handle) Job() Job {
	return h.job
}

// Done returns a channel closed when the job has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Ready reports whether the job has completed.
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Complete records the job result and wakes up waiters. Calls after the first are ignored.
func (h *Handle) Complete(n int, err error) {
	h.once.Do(func() {
		h.n, h.err = n, err
		close(h.done)
	})
}

// Wait blocks until the job completes or ctx is done.
//
// Returns:
//   - int: Bytes written to Job.Dst
//   - error: The engine error, or ctx.Err() if ctx ended first
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.n, h.err
	case <-ctx.Done():
		select {
		case <-h.done:
			return h.n, h.err
		default:
		}

		return 0, ctx.Err()
	}
}

// Engine is an asynchronous block codec unit.
//
// Submit must not block on the job itself; Collect blocks until the handle
// completes. Every accepted job must eventually complete, including when the
// engine is closed, so that callers can reclaim the job's buffers.
type Engine interface {
	// Submit schedules job and returns its handle.
	Submit(job Job) (*Handle, error)
	// Poll reports whether h has completed without blocking.
	Poll(h *Handle) bool
	// Collect waits for h and returns the job result.
	Collect(ctx context.Context, h *Handle) (int, error)
	// Close stops accepting jobs.
	Close() error
}
