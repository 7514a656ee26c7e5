// Package pipeline frames data in the LZ4 frame format while overlapping block
// codec work across the engines leased from an engine.Context.
//
// A Compressor splits its input into independent blocks, hands them to the
// overlap scheduler and writes the results strictly in block order, storing
// a block raw when compression does not shrink it. A Decompressor reverses
// the process, either from a complete frame in memory or incrementally from a
// non-seekable reader.
//
//	ec, _ := engine.NewContext(engine.WithEngines(4))
//	defer ec.Close()
//
//	c, _ := pipeline.NewCompressor(ec, pipeline.WithDepth(4))
//	defer c.Close()
//	n, err := c.Compress(ctx, w, data)
//
// Calls on one pipeline are serialized. Any error leaves the caller's output
// untrusted; the pipeline itself resets and can run the next frame.
package pipeline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/scheduler"
)

// core holds the state shared by both pipeline directions.
type core struct {
	mu     sync.Mutex
	op     format.Operation
	cfg    *config
	lease  *engine.Lease
	sched  *scheduler.Scheduler
	logger *zap.Logger
	closed bool
}

func newCore(op format.Operation, ec *engine.Context, cfg *config, schedOpts ...scheduler.Option) (*core, error) {
	lease, err := ec.Acquire(cfg.depth)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger.With(zap.Stringer("op", op))
	schedOpts = append(schedOpts, scheduler.WithLogger(logger))
	sched, err := scheduler.New(op, lease.Engines(), schedOpts...)
	if err != nil {
		lease.Release()
		return nil, err
	}

	return &core{
		op:     op,
		cfg:    cfg,
		lease:  lease,
		sched:  sched,
		logger: logger,
	}, nil
}

// Depth returns the overlap depth K.
func (p *core) Depth() int {
	return p.sched.Depth()
}

func (p *core) begin() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errs.ErrPipelineClosed
	}

	return nil
}

func (p *core) end() {
	p.cfg.metrics.InFlight(p.op, p.sched.InFlight())
	p.mu.Unlock()
}

// fail abandons the current frame so the next call starts from idle slots.
func (p *core) fail(err error) error {
	p.sched.Reset()
	p.cfg.metrics.Fault(p.op)

	fields := []zap.Field{zap.Error(err)}
	if seq, off, ok := errs.BlockOf(err); ok {
		fields = append(fields, zap.Int("seq", seq), zap.Int64("offset", off))
	}
	p.logger.Warn("frame aborted", fields...)

	return err
}

func (p *core) tick() {
	p.cfg.metrics.InFlight(p.op, p.sched.InFlight())
}

// Close releases the pipeline's engines back to the context. It is safe to
// call more than once.
func (p *core) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.sched.Close()
	p.lease.Release()

	return nil
}
