package engine

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/internal/options"
)

type contextConfig struct {
	engines int
	codec   compress.Codec
	logger  *zap.Logger
}

func (c *contextConfig) Validate() error {
	if c.engines <= 0 {
		return errors.Newf("engine count must be positive, got %d", c.engines)
	}
	if c.codec == nil {
		return errors.New("codec must not be nil")
	}

	return nil
}

// ContextOption configures a Context.
type ContextOption = options.Option[*contextConfig]

// WithEngines sets the number of software engines. Defaults to GOMAXPROCS.
func WithEngines(n int) ContextOption {
	return options.NoError(func(c *contextConfig) {
		c.engines = n
	})
}

// WithCodec sets the block codec run by the software engines. Defaults to LZ4.
func WithCodec(codec compress.Codec) ContextOption {
	return options.NoError(func(c *contextConfig) {
		c.codec = codec
	})
}

// WithContextLogger sets the logger for worker pool panics and lease events.
func WithContextLogger(logger *zap.Logger) ContextOption {
	return options.NoError(func(c *contextConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// Context owns a set of engines and leases them to pipelines.
//
// The caller creates the Context, hands it to pipelines, and closes it once
// every pipeline using it has been closed.
type Context struct {
	mu      sync.Mutex
	pool    *ants.Pool
	engines []Engine
	leased  []bool
	logger  *zap.Logger
	closed  bool
}

// NewContext creates a Context of software engines sharing one worker pool.
//
// Returns:
//   - *Context: New engine context
//   - error: Invalid configuration or worker pool creation error
func NewContext(opts ...ContextOption) (*Context, error) {
	cfg := &contextConfig{
		engines: runtime.GOMAXPROCS(0),
		codec:   compress.NewLZ4Codec(),
		logger:  zap.NewNop(),
	}
	if err := options.Build(cfg, opts...); err != nil {
		return nil, err
	}

	logger := cfg.logger
	pool, err := ants.NewPool(cfg.engines,
		ants.WithPreAlloc(false),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v any) {
			logger.Error("engine worker panicked", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create engine worker pool")
	}

	engines := make([]Engine, cfg.engines)
	for i := range engines {
		engines[i] = NewSoftwareEngine(i, cfg.codec, pool)
	}

	return &Context{
		pool:    pool,
		engines: engines,
		leased:  make([]bool, len(engines)),
		logger:  logger,
	}, nil
}

// NewContextWith wraps caller-provided engines, for example hardware-backed
// ones. Close closes them.
func NewContextWith(engines ...Engine) (*Context, error) {
	if len(engines) == 0 {
		return nil, errs.ErrNoEngines
	}

	return &Context{
		engines: engines,
		leased:  make([]bool, len(engines)),
		logger:  zap.NewNop(),
	}, nil
}

// Size returns the number of engines owned by the context.
func (c *Context) Size() int {
	return len(c.engines)
}

// Idle returns the number of engines not currently leased.
func (c *Context) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	idle := 0
	for _, l := range c.leased {
		if !l {
			idle++
		}
	}

	return idle
}

// Engine returns the i-th engine regardless of lease state.
func (c *Context) Engine(i int) Engine {
	return c.engines[i]
}

// Acquire leases k idle engines exclusively to the caller.
//
// Parameters:
//   - k: Number of engines, the overlap depth of the pipeline using them
//
// Returns:
//   - *Lease: Lease to release when the pipeline closes
//   - error: ErrEnginesLeased if fewer than k engines are idle, ErrEngineClosed after Close
func (c *Context) Acquire(k int) (*Lease, error) {
	if k <= 0 {
		return nil, errors.Newf("lease size must be positive, got %d", k)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errs.ErrEngineClosed
	}

	picked := make([]int, 0, k)
	for i, l := range c.leased {
		if !l {
			picked = append(picked, i)
			if len(picked) == k {
				break
			}
		}
	}
	if len(picked) < k {
		return nil, errors.Wrapf(errs.ErrEnginesLeased, "want %d, idle %d of %d", k, len(picked), len(c.engines))
	}

	lease := &Lease{owner: c, index: picked, engines: make([]Engine, k)}
	for i, idx := range picked {
		c.leased[idx] = true
		lease.engines[i] = c.engines[idx]
	}
	c.logger.Debug("engines leased", zap.Ints("engines", picked))

	return lease, nil
}

func (c *Context) release(index []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, idx := range index {
		c.leased[idx] = false
	}
	c.logger.Debug("engines released", zap.Ints("engines", index))
}

// Close closes every engine and releases the worker pool. Jobs already
// submitted run to completion first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	outstanding := 0
	for _, l := range c.leased {
		if l {
			outstanding++
		}
	}
	c.mu.Unlock()

	if outstanding > 0 {
		c.logger.Warn("closing engine context with leased engines", zap.Int("leased", outstanding))
	}

	var err error
	for _, e := range c.engines {
		err = errors.CombineErrors(err, e.Close())
	}
	if c.pool != nil {
		c.pool.Release()
	}

	return err
}

// Lease is an exclusive hold on a subset of a Context's engines.
type Lease struct {
	owner   *Context
	index   []int
	engines []Engine
	once    sync.Once
}

// Engines returns the leased engines. Slot i of a scheduler binds to Engines()[i].
func (l *Lease) Engines() []Engine {
	return l.engines
}

// Size returns the number of leased engines.
func (l *Lease) Size() int {
	return len(l.engines)
}

// Release returns the engines to the context. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.owner.release(l.index)
	})
}
