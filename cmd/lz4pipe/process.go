package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/lz4pipe/compress"
	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/internal/hash"
	"github.com/arloliu/lz4pipe/pipeline"
)

// errValidation marks a roundtrip whose decoded content differs from its input.
var errValidation = errors.New("validation failed")

// Result describes the outcome for one input file.
type Result struct {
	Path     string
	Mode     Mode
	In       int64
	Out      int64
	Elapsed  time.Duration
	Err      error
	Validate Validation
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s\t%s\tFAIL\t%v", r.Path, r.Mode, r.Err)
	}

	ratio := 0.0
	if r.In > 0 {
		ratio = float64(r.Out) / float64(r.In)
	}

	return fmt.Sprintf("%s\t%s\tOK\t%d -> %d bytes (%.3f) in %s", r.Path, r.Mode, r.In, r.Out, ratio, r.Elapsed.Round(time.Microsecond))
}

// process runs every input of cfg, at most cfg.Parallel at a time. Per-file
// failures land in the results; the returned error covers setup only.
func process(cfg *Config, logger *zap.Logger) ([]Result, error) {
	codec, err := compress.CreateCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	workers := min(cfg.Parallel, len(cfg.Inputs))
	ec, err := engine.NewContext(
		engine.WithEngines(cfg.Depth*workers),
		engine.WithCodec(codec),
		engine.WithContextLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ec.Close(); cerr != nil {
			logger.Warn("close engine context", zap.Error(cerr))
		}
	}()

	results := make([]Result, len(cfg.Inputs))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i, path := range cfg.Inputs {
		i, path := i, path
		g.Go(func() error {
			start := time.Now()
			r := Result{Path: path, Mode: cfg.Mode, Validate: cfg.Validate}
			r.In, r.Out, r.Err = runFile(ctx, ec, cfg, path, logger.With(zap.String("file", path)))
			r.Elapsed = time.Since(start)
			results[i] = r

			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			logger.Error("file failed", zap.String("file", r.Path), zap.Error(r.Err))
		} else {
			logger.Debug("file done", zap.String("file", r.Path),
				zap.Int64("in", r.In), zap.Int64("out", r.Out), zap.Duration("elapsed", r.Elapsed))
		}
	}

	return results, nil
}

func pipelineOptions(cfg *Config, logger *zap.Logger) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithBlockSize(cfg.BlockSize),
		pipeline.WithDepth(cfg.Depth),
		pipeline.WithLogger(logger),
	}
}

func runFile(ctx context.Context, ec *engine.Context, cfg *Config, path string, logger *zap.Logger) (int64, int64, error) {
	switch cfg.Mode {
	case ModeCompress:
		return compressFile(ctx, ec, cfg, path, outputPath(cfg, path), logger)
	case ModeDecompress:
		return decompressFile(ctx, ec, cfg, path, outputPath(cfg, path), logger)
	default:
		return roundtripFile(ctx, ec, cfg, path, logger)
	}
}

// outputPath derives the destination of path: -out when given, otherwise
// path with ".lz4" appended on compress and stripped (or ".out" appended) on
// decompress.
func outputPath(cfg *Config, path string) string {
	if cfg.Out != "" {
		return cfg.Out
	}
	if cfg.Mode == ModeCompress {
		return path + ".lz4"
	}
	if trimmed, ok := strings.CutSuffix(path, ".lz4"); ok && trimmed != "" {
		return trimmed
	}

	return path + ".out"
}

func compressFile(ctx context.Context, ec *engine.Context, cfg *Config, in, out string, logger *zap.Logger) (int64, int64, error) {
	src, err := os.Open(in)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, 0, err
	}

	c, err := pipeline.NewCompressor(ec, pipelineOptions(cfg, logger)...)
	if err != nil {
		return 0, 0, err
	}
	defer c.Close()

	n, err := writeFile(out, func(w io.Writer) (int64, error) {
		return c.CompressStream(ctx, w, bufio.NewReader(src), info.Size())
	})

	return info.Size(), n, err
}

func decompressFile(ctx context.Context, ec *engine.Context, cfg *Config, in, out string, logger *zap.Logger) (int64, int64, error) {
	src, err := os.Open(in)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, 0, err
	}

	d, err := pipeline.NewDecompressor(ec, pipelineOptions(cfg, logger)...)
	if err != nil {
		return 0, 0, err
	}
	defer d.Close()

	n, err := writeFile(out, func(w io.Writer) (int64, error) {
		return d.DecompressStream(ctx, w, src)
	})

	return info.Size(), n, err
}

// writeFile creates path and fills it with fn. The file is removed when fn fails.
func writeFile(path string, fn func(w io.Writer) (int64, error)) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(f)
	n, err := fn(bw)
	if err == nil {
		err = bw.Flush()
	}
	err = errors.CombineErrors(err, f.Close())
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}

	return n, nil
}

// roundtripFile compresses path in memory, streams the frame back through the
// decompressor and, unless validation is off, compares XXH64 digests.
func roundtripFile(ctx context.Context, ec *engine.Context, cfg *Config, path string, logger *zap.Logger) (int64, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	size := int64(len(data))
	opts := pipelineOptions(cfg, logger)

	c, err := pipeline.NewCompressor(ec, opts...)
	if err != nil {
		return size, 0, err
	}
	framed, err := c.CompressBytes(ctx, data)
	err = errors.CombineErrors(err, c.Close())
	if err != nil {
		return size, 0, err
	}

	d, err := pipeline.NewDecompressor(ec, opts...)
	if err != nil {
		return size, int64(len(framed)), err
	}
	defer d.Close()

	digest := hash.NewDigest()
	var sink io.Writer = digest
	if cfg.Validate == ValidateNone {
		sink = io.Discard
	}
	if _, err = d.DecompressStream(ctx, sink, bytes.NewReader(framed)); err != nil {
		return size, int64(len(framed)), err
	}
	if cfg.Validate == ValidateNone {
		return size, int64(len(framed)), nil
	}

	want := hash.Digest(data)
	if got := digest.Sum64(); got != want {
		return size, int64(len(framed)), errors.Wrapf(errValidation, "pipeline digest %016x, want %016x", got, want)
	}

	if cfg.Validate == ValidateInterop {
		interop := hash.NewDigest()
		if _, err = io.Copy(interop, lz4.NewReader(bytes.NewReader(framed))); err != nil {
			return size, int64(len(framed)), errors.Wrap(err, "lz4 reader")
		}
		if got := interop.Sum64(); got != want {
			return size, int64(len(framed)), errors.Wrapf(errValidation, "lz4 reader digest %016x, want %016x", got, want)
		}
	}

	return size, int64(len(framed)), nil
}
