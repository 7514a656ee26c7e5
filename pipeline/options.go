package pipeline

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/internal/options"
	"github.com/arloliu/lz4pipe/metrics"
)

const (
	// DefaultMaxInputSize caps the content of a single frame.
	DefaultMaxInputSize int64 = 1 << 30
	// DefaultHostBufferSize is the prefetch chunk of streaming decompression.
	DefaultHostBufferSize = 256 << 10
	// DefaultDepth is the overlap depth used when a pipeline is given no depth.
	DefaultDepth = 2
)

type config struct {
	blockSize format.BlockSize
	depth     int
	maxInput  int64
	hostBuf   int
	readSize  int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func defaultConfig() *config {
	return &config{
		blockSize: format.DefaultBlockSize,
		depth:     DefaultDepth,
		maxInput:  DefaultMaxInputSize,
		hostBuf:   DefaultHostBufferSize,
		logger:    zap.NewNop(),
	}
}

func (c *config) Validate() error {
	if !c.blockSize.Valid() {
		return errors.Newf("invalid block size code %d", c.blockSize)
	}
	if c.depth <= 0 {
		return errors.Newf("overlap depth must be positive, got %d", c.depth)
	}
	if c.maxInput <= 0 {
		return errors.Newf("max input size must be positive, got %d", c.maxInput)
	}
	if c.hostBuf <= 0 {
		return errors.Newf("host buffer size must be positive, got %d", c.hostBuf)
	}
	if c.readSize < 0 || c.readSize > c.hostBuf {
		return errors.Newf("read size %d must be within (0, %d]", c.readSize, c.hostBuf)
	}

	return nil
}

// Option configures a Compressor or Decompressor.
type Option = options.Option[*config]

// WithBlockSize sets the frame block size used by the compressor. Defaults to 64KB.
func WithBlockSize(bs format.BlockSize) Option {
	return options.NoError(func(c *config) {
		c.blockSize = bs
	})
}

// WithDepth sets K, the number of engines leased from the context. Defaults to 2.
func WithDepth(k int) Option {
	return options.NoError(func(c *config) {
		c.depth = k
	})
}

// WithMaxInputSize limits the content size of a frame. Larger inputs, or
// frames declaring more content, fail with an overflow error.
func WithMaxInputSize(n int64) Option {
	return options.NoError(func(c *config) {
		c.maxInput = n
	})
}

// WithHostBufferSize sets the prefetch chunk of DecompressStream. Defaults to 256KiB.
func WithHostBufferSize(n int) Option {
	return options.NoError(func(c *config) {
		c.hostBuf = n
	})
}

// WithReadSize bounds every read issued to the source of a streaming call.
// Zero, the default, reads a full host buffer at a time.
func WithReadSize(n int) Option {
	return options.NoError(func(c *config) {
		c.readSize = n
	})
}

// WithLogger sets the pipeline logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMetrics records pipeline activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return options.NoError(func(c *config) {
		c.metrics = m
	})
}

// DepthOf returns the overlap depth opts configure, for callers sizing an
// engine.Context to fit one pipeline.
func DepthOf(opts ...Option) int {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil || cfg.depth <= 0 {
		return DefaultDepth
	}

	return cfg.depth
}
