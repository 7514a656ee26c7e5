// Package scheduler overlaps block codec work across the engines of a lease
// while handing results back strictly in issue order.
//
// A Scheduler owns K slots, slot i bound to engine i. The control goroutine
// issues blocks into free slots and harvests them in the order they were
// issued, whatever order the engines finish in:
//
//	for each block {
//		if s.Available() == 0 {
//			s.Retire(ctx, emit) // oldest block first
//		}
//		s.Issue(ctx, blk, src, dst)
//	}
//	s.Drain(ctx, emit)
//
// A Scheduler is driven by one goroutine at a time. Issue blocks while every
// slot is in flight, so a single control goroutine must retire a block first.
package scheduler

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
	"github.com/arloliu/lz4pipe/internal/options"
	"github.com/arloliu/lz4pipe/internal/pool"
)

type config struct {
	inSize  int
	outSize int
	logger  *zap.Logger
}

func (c *config) Validate() error {
	if c.inSize < 0 || c.outSize < 0 {
		return errors.Newf("slot buffer sizes must not be negative, got %d/%d", c.inSize, c.outSize)
	}

	return nil
}

// Option configures a Scheduler.
type Option = options.Option[*config]

// WithSlotBuffers gives every slot pooled staging buffers: an input buffer of
// inSize bytes and an output buffer of outSize bytes. Zero skips a buffer.
func WithSlotBuffers(inSize, outSize int) Option {
	return options.NoError(func(c *config) {
		c.inSize, c.outSize = inSize, outSize
	})
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// Scheduler is the overlap slot ring of one pipeline.
type Scheduler struct {
	op     format.Operation
	slots  []*Slot
	free   chan *Slot
	fifo   []*Slot
	cfg    config
	logger *zap.Logger
}

// New creates a scheduler with one slot per engine.
//
// Parameters:
//   - op: Direction of every job submitted by the scheduler
//   - engines: Leased engines, slot i binds to engines[i]
//   - opts: Slot buffer and logging options
//
// Returns:
//   - *Scheduler: Scheduler with every slot idle
//   - error: ErrNoEngines or an invalid option
func New(op format.Operation, engines []engine.Engine, opts ...Option) (*Scheduler, error) {
	if len(engines) == 0 {
		return nil, errs.ErrNoEngines
	}
	if op != format.OpCompress && op != format.OpDecompress {
		return nil, errors.Newf("invalid operation %s", op)
	}

	cfg := config{logger: zap.NewNop()}
	if err := options.Build(&cfg, opts...); err != nil {
		return nil, err
	}

	s := &Scheduler{
		op:     op,
		slots:  make([]*Slot, len(engines)),
		free:   make(chan *Slot, len(engines)),
		fifo:   make([]*Slot, 0, len(engines)),
		cfg:    cfg,
		logger: cfg.logger,
	}
	for i, e := range engines {
		slot := &Slot{index: i, engine: e}
		if cfg.inSize > 0 {
			slot.in = pool.ForSize(cfg.inSize).Get()
		}
		if cfg.outSize > 0 {
			slot.out = pool.ForSize(cfg.outSize).Get()
		}
		s.slots[i] = slot
		s.free <- slot
	}

	return s, nil
}

// Depth returns K, the number of slots.
func (s *Scheduler) Depth() int {
	return len(s.slots)
}

// Available returns the number of slots in the free pool.
func (s *Scheduler) Available() int {
	return len(s.free)
}

// InFlight returns the number of issued blocks not yet harvested.
func (s *Scheduler) InFlight() int {
	return len(s.fifo)
}

// Slot returns the i-th slot.
func (s *Scheduler) Slot(i int) *Slot {
	return s.slots[i]
}

// Acquire takes an idle slot from the free pool, blocking until one is
// released or ctx is done. The caller may fill the slot's In buffer before
// calling Submit.
func (s *Scheduler) Acquire(ctx context.Context) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case slot := <-s.free:
		slot.taken = true
		return slot, nil
	default:
	}

	select {
	case slot := <-s.free:
		slot.taken = true
		return slot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit stages blk in an acquired slot and hands it to the slot's engine.
//
// Parameters:
//   - slot: Slot returned by Acquire
//   - blk: Block metadata
//   - src: Input bytes; must stay untouched until the slot is released
//   - dst: Engine output buffer
//
// Returns:
//   - error: ErrInvalidSlotState for a slot not acquired, CodecFault if the engine rejects the job
func (s *Scheduler) Submit(slot *Slot, blk Block, src, dst []byte) error {
	if err := s.stage(slot, blk, src, dst); err != nil {
		return err
	}

	h, err := slot.engine.Submit(engine.Job{Op: s.op, Seq: blk.Seq, Src: src, Dst: dst})
	if err != nil {
		_ = slot.transit(format.SlotFaulted)
		s.logger.Warn("engine rejected block", zap.Int("slot", slot.index), zap.Int("seq", blk.Seq), zap.Error(err))

		return errs.CodecFault(blk.Seq, blk.Offset, err)
	}

	slot.handle = h
	if err := slot.transit(format.SlotSubmitted); err != nil {
		return err
	}
	s.fifo = append(s.fifo, slot)

	return nil
}

// SubmitBypass stages a raw block that completes without an engine. It keeps
// stored blocks in issue order with the blocks the engines are working on.
func (s *Scheduler) SubmitBypass(slot *Slot, blk Block, src []byte) error {
	if err := s.stage(slot, blk, src, nil); err != nil {
		return err
	}

	slot.bypass = true
	if err := slot.transit(format.SlotCompleted); err != nil {
		return err
	}
	s.fifo = append(s.fifo, slot)

	return nil
}

// Issue acquires a free slot, stages blk and submits it to the slot's engine.
func (s *Scheduler) Issue(ctx context.Context, blk Block, src, dst []byte) (*Slot, error) {
	slot, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return slot, s.Submit(slot, blk, src, dst)
}

// IssueBypass acquires a free slot for a raw block that skips the engine.
func (s *Scheduler) IssueBypass(ctx context.Context, blk Block, src []byte) (*Slot, error) {
	slot, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return slot, s.SubmitBypass(slot, blk, src)
}

func (s *Scheduler) stage(slot *Slot, blk Block, src, dst []byte) error {
	if !slot.taken {
		return errors.Wrapf(errs.ErrInvalidSlotState, "slot %d: not acquired", slot.index)
	}
	if err := slot.transit(format.SlotStaged); err != nil {
		return err
	}

	slot.block = blk
	slot.src, slot.dst = src, dst

	return nil
}

// Harvest waits for the oldest issued block and returns its slot.
//
// Blocks are harvested strictly in issue order: a block that finished early
// waits for every block issued before it. For compression the slot falls back
// to the raw input when the engine output is empty or not smaller than the
// input. For decompression the decoded length must match Block.RawLen.
//
// Returns:
//   - *Slot: Harvested slot; call Release after consuming its payload
//   - error: CodecFault on engine failure, ctx.Err() if ctx ended first
func (s *Scheduler) Harvest(ctx context.Context) (*Slot, error) {
	if len(s.fifo) == 0 {
		return nil, errors.Wrap(errs.ErrInvalidSlotState, "harvest with nothing in flight")
	}

	slot := s.fifo[0]
	blk := slot.block

	if !slot.bypass {
		n, err := slot.engine.Collect(ctx, slot.handle)
		if err != nil && ctx.Err() != nil {
			if !slot.handle.Ready() {
				return nil, err
			}
			n, err = slot.handle.Wait(context.Background())
		}
		s.pop()
		if err != nil {
			return nil, s.fault(slot, err)
		}
		if err := slot.transit(format.SlotCompleted); err != nil {
			return nil, err
		}
		slot.n = n

		if err := s.settle(slot); err != nil {
			return nil, s.fault(slot, err)
		}
	} else {
		s.pop()
		slot.raw = true
		slot.n = len(slot.src)
	}

	if err := slot.transit(format.SlotHarvested); err != nil {
		return nil, err
	}
	s.logger.Debug("block harvested",
		zap.Int("slot", slot.index), zap.Int("seq", blk.Seq), zap.Bool("raw", slot.raw), zap.Int("len", slot.n))

	return slot, nil
}

func (s *Scheduler) settle(slot *Slot) error {
	switch s.op {
	case format.OpCompress:
		if slot.n <= 0 || slot.n >= slot.block.RawLen {
			slot.raw = true
		}
	case format.OpDecompress:
		if slot.n < 0 || slot.n > len(slot.dst) {
			return errors.Newf("decoded %d bytes into a %d byte window", slot.n, len(slot.dst))
		}
		if want := slot.block.RawLen; want > 0 && slot.n != want {
			return errors.Wrapf(errs.ErrContentSize, "decoded %d bytes, want %d", slot.n, want)
		}
	}

	return nil
}

func (s *Scheduler) pop() {
	s.fifo[0] = nil
	s.fifo = s.fifo[1:]
}

func (s *Scheduler) fault(slot *Slot, cause error) error {
	slot.state = format.SlotFaulted
	blk := slot.block
	s.logger.Warn("codec fault",
		zap.Int("slot", slot.index), zap.Int("seq", blk.Seq), zap.Int64("offset", blk.Offset), zap.Error(cause))

	return errs.CodecFault(blk.Seq, blk.Offset, cause)
}

// Release returns a harvested slot to the free pool.
func (s *Scheduler) Release(slot *Slot) error {
	if err := slot.transit(format.SlotIdle); err != nil {
		return err
	}

	slot.clear()
	s.free <- slot

	return nil
}

// Retire harvests the oldest block, passes its slot to emit and releases it.
func (s *Scheduler) Retire(ctx context.Context, emit func(*Slot) error) error {
	slot, err := s.Harvest(ctx)
	if err != nil {
		return err
	}
	if err := emit(slot); err != nil {
		return err
	}

	return s.Release(slot)
}

// Drain retires every block still in flight, oldest first.
func (s *Scheduler) Drain(ctx context.Context, emit func(*Slot) error) error {
	for len(s.fifo) > 0 {
		if err := s.Retire(ctx, emit); err != nil {
			return err
		}
	}

	return nil
}

// Reset abandons the current frame. It waits for every job still held by an
// engine, so no engine writes into a slot buffer afterwards, then returns all
// slots to the free pool.
func (s *Scheduler) Reset() {
	pending := 0
	for _, slot := range s.slots {
		if slot.handle != nil && !slot.handle.Ready() {
			pending++
			<-slot.handle.Done()
		}
	}

	for len(s.free) > 0 {
		<-s.free
	}
	for _, slot := range s.slots {
		slot.clear()
		s.free <- slot
	}
	s.fifo = s.fifo[:0]

	s.logger.Debug("scheduler reset", zap.Int("abandoned", pending))
}

// Close resets the scheduler and returns the slot buffers to their pools.
// The scheduler must not be used afterwards.
func (s *Scheduler) Close() {
	s.Reset()

	for _, slot := range s.slots {
		if slot.in != nil {
			pool.ForSize(s.cfg.inSize).Put(slot.in)
			slot.in = nil
		}
		if slot.out != nil {
			pool.ForSize(s.cfg.outSize).Put(slot.out)
			slot.out = nil
		}
	}
}
