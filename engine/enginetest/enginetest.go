// Package enginetest provides engines with scripted completion order, latency
// and faults for testing the scheduler and pipelines.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

// Execute runs job synchronously with codec.
func Execute(codec compress.Codec, job engine.Job) (int, error) {
	switch job.Op {
	case format.OpCompress:
		return codec.CompressBlock(job.Dst, job.Src)
	case format.OpDecompress:
		return codec.DecompressBlock(job.Dst, job.Src)
	default:
		return 0, errors.Newf("invalid operation %s", job.Op)
	}
}

// Reversed coordinates a group of engines so that pending jobs always
// complete in reverse submission order: the last submitted job finishes first.
//
// Jobs are held until either depth jobs are pending or a caller collects a
// pending handle; then every pending job completes, newest first.
type Reversed struct {
	mu      sync.Mutex
	codec   compress.Codec
	depth   int
	pending []*engine.Handle
	order   []int
	closed  bool
}

// NewReversed creates a coordinator and k engine facades sharing it.
func NewReversed(codec compress.Codec, k int) (*Reversed, []engine.Engine) {
	r := &Reversed{codec: codec, depth: k}
	engines := make([]engine.Engine, k)
	for i := range engines {
		engines[i] = &reversedEngine{r: r}
	}

	return r, engines
}

// CompletionOrder returns the sequence numbers in the order their jobs completed.
func (r *Reversed) CompletionOrder() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.order...)
}

func (r *Reversed) submit(job engine.Job) (*engine.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errs.ErrEngineClosed
	}

	h := engine.NewHandle(job)
	r.pending = append(r.pending, h)
	if len(r.pending) >= r.depth {
		r.flushLocked()
	}

	return h, nil
}

func (r *Reversed) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Reversed) flushLocked() {
	for i := len(r.pending) - 1; i >= 0; i-- {
		h := r.pending[i]
		n, err := Execute(r.codec, h.Job())
		r.order = append(r.order, h.Job().Seq)
		h.Complete(n, err)
	}
	r.pending = r.pending[:0]
}

type reversedEngine struct {
	r *Reversed
}

func (e *reversedEngine) Submit(job engine.Job) (*engine.Handle, error) {
	return e.r.submit(job)
}

func (e *reversedEngine) Poll(h *engine.Handle) bool {
	return h.Ready()
}

func (e *reversedEngine) Collect(ctx context.Context, h *engine.Handle) (int, error) {
	if !h.Ready() {
		e.r.flush()
	}

	return h.Wait(ctx)
}

func (e *reversedEngine) Close() error {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.r.closed = true
	e.r.flushLocked()

	return nil
}

// Delayed wraps an engine and holds each completion back by Delay(seq).
type Delayed struct {
	Inner engine.Engine
	Delay func(seq int) time.Duration
}

var _ engine.Engine = (*Delayed)(nil)

// Submit forwards job to the inner engine and completes the returned handle
// once the inner job is done and the delay has elapsed.
func (d *Delayed) Submit(job engine.Job) (*engine.Handle, error) {
	inner, err := d.Inner.Submit(job)
	if err != nil {
		return nil, err
	}

	h := engine.NewHandle(job)
	go func() {
		n, err := d.Inner.Collect(context.Background(), inner)
		if d.Delay != nil {
			time.Sleep(d.Delay(job.Seq))
		}
		h.Complete(n, err)
	}()

	return h, nil
}

// Poll reports whether h has completed.
func (d *Delayed) Poll(h *engine.Handle) bool {
	return h.Ready()
}

// Collect waits for h.
func (d *Delayed) Collect(ctx context.Context, h *engine.Handle) (int, error) {
	return h.Wait(ctx)
}

// Close closes the inner engine.
func (d *Delayed) Close() error {
	return d.Inner.Close()
}

// ErrInjected is the failure reported by Faulty.
var ErrInjected = errors.New("injected engine fault")

// Faulty wraps an engine and fails the jobs selected by Fail.
type Faulty struct {
	Inner engine.Engine
	Fail  func(job engine.Job) bool
}

var _ engine.Engine = (*Faulty)(nil)

// Submit fails selected jobs asynchronously; the rest go to the inner engine.
func (f *Faulty) Submit(job engine.Job) (*engine.Handle, error) {
	if f.Fail != nil && f.Fail(job) {
		h := engine.NewHandle(job)
		go h.Complete(0, ErrInjected)

		return h, nil
	}

	return f.Inner.Submit(job)
}

// Poll reports whether h has completed.
func (f *Faulty) Poll(h *engine.Handle) bool {
	return h.Ready()
}

// Collect waits for h.
func (f *Faulty) Collect(ctx context.Context, h *engine.Handle) (int, error) {
	return h.Wait(ctx)
}

// Close closes the inner engine.
func (f *Faulty) Close() error {
	return f.Inner.Close()
}

// Sync is an engine that completes every job inside Submit. It counts jobs so
// tests can assert that an engine was bypassed.
type Sync struct {
	Codec compress.Codec

	mu   sync.Mutex
	jobs int
}

var _ engine.Engine = (*Sync)(nil)

// Jobs returns the number of jobs submitted so far.
func (s *Sync) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs
}

// Submit runs job immediately.
func (s *Sync) Submit(job engine.Job) (*engine.Handle, error) {
	s.mu.Lock()
	s.jobs++
	s.mu.Unlock()

	h := engine.NewHandle(job)
	h.Complete(Execute(s.Codec, job))

	return h, nil
}

// Poll reports whether h has completed.
func (s *Sync) Poll(h *engine.Handle) bool {
	return h.Ready()
}

// Collect returns the result of h.
func (s *Sync) Collect(ctx context.Context, h *engine.Handle) (int, error) {
	return h.Wait(ctx)
}

// Close is a no-op.
func (s *Sync) Close() error {
	return nil
}
