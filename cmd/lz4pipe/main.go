// Command lz4pipe compresses, decompresses or round-trips files through the
// lz4pipe pipelines.
//
// Usage:
//
//	lz4pipe -mode compress -in data.bin -out data.bin.lz4
//	lz4pipe -mode decompress -in data.bin.lz4
//	lz4pipe -mode roundtrip -list files.txt -block 1024 -depth 4 -validate interop
//
// The exit status is 0 on success, 1 if a file cannot be processed or fails
// validation, and 2 on invalid usage.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arloliu/lz4pipe/format"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Mode selects what the command does with every input file.
type Mode string

const (
	ModeCompress   Mode = "compress"
	ModeDecompress Mode = "decompress"
	ModeRoundtrip  Mode = "roundtrip"
)

// Validation selects how roundtrip checks its result.
type Validation string

const (
	ValidateNone    Validation = "none"
	ValidateDigest  Validation = "digest"
	ValidateInterop Validation = "interop"
)

// Config is the parsed command line.
type Config struct {
	Mode      Mode
	BlockSize format.BlockSize
	Codec     format.CodecType
	Depth     int
	Parallel  int
	Inputs    []string
	List      string
	Out       string
	Validate  Validation
	Verbose   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitUsage
	}

	if cfg.List != "" {
		if cfg.Inputs, err = readList(cfg.List); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
	}

	logger := newLogger(cfg.Verbose, stderr)
	defer func() { _ = logger.Sync() }()

	results, err := process(cfg, logger)
	if err != nil {
		logger.Error("lz4pipe failed", zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	failed := false
	for _, r := range results {
		fmt.Fprintln(stdout, r)
		if r.Err != nil {
			failed = true
		}
	}
	if failed {
		return exitFailure
	}

	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("lz4pipe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	mode := fs.String("mode", string(ModeRoundtrip), "Operation: compress, decompress or roundtrip")
	blockKB := fs.Int("block", 64, "Block size in KiB: 64, 256, 1024 or 4096")
	codec := fs.String("codec", "fast", "Block codec: fast, hc or store")
	depth := fs.Int("depth", 2, "Overlap depth, the number of engines per file")
	parallel := fs.Int("parallel", runtime.GOMAXPROCS(0), "Files processed concurrently with -list")
	in := fs.String("in", "", "Input file")
	list := fs.String("list", "", "File with one input path per line")
	out := fs.String("out", "", "Output file for a single input; default derives from the input name")
	validate := fs.String("validate", string(ValidateDigest), "Roundtrip validation: none, digest or interop")
	verbose := fs.Bool("v", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := &Config{
		Mode:     Mode(*mode),
		Depth:    *depth,
		Parallel: *parallel,
		Out:      *out,
		Validate: Validation(*validate),
		Verbose:  *verbose,
	}

	switch cfg.Mode {
	case ModeCompress, ModeDecompress, ModeRoundtrip:
	default:
		return nil, fmt.Errorf("-mode must be compress, decompress or roundtrip, got %q", *mode)
	}
	switch cfg.Validate {
	case ValidateNone, ValidateDigest, ValidateInterop:
	default:
		return nil, fmt.Errorf("-validate must be none, digest or interop, got %q", *validate)
	}

	bs, err := format.BlockSizeFromKB(*blockKB)
	if err != nil {
		return nil, err
	}
	cfg.BlockSize = bs

	if cfg.Codec, err = format.ParseCodecType(*codec); err != nil {
		return nil, err
	}
	if cfg.Depth <= 0 {
		return nil, fmt.Errorf("-depth must be positive")
	}
	if cfg.Parallel <= 0 {
		return nil, fmt.Errorf("-parallel must be positive")
	}

	if (*in == "") == (*list == "") {
		return nil, fmt.Errorf("exactly one of -in or -list is required")
	}
	if *in != "" {
		cfg.Inputs = []string{*in}
	} else {
		if cfg.Out != "" {
			return nil, fmt.Errorf("-out cannot be combined with -list")
		}
		cfg.List = *list
	}

	return cfg, nil
}

func readList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s lists no files", path)
	}

	return paths, nil
}

// newLogger builds a production logger writing JSON to stderr.
func newLogger(verbose bool, stderr io.Writer) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(stderr), cfg.Level)

	return zap.New(core, zap.AddCaller())
}
