package scheduler

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/engine"
	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

// Block describes the frame block staged in a slot.
type Block struct {
	// Seq is the block sequence number, contiguous from 0 within a frame.
	Seq int
	// Offset is the raw (uncompressed) offset of the block in the content.
	Offset int64
	// RawLen is the raw length of the block. For decompression it is the
	// expected decoded length, or 0 when the frame does not declare it.
	RawLen int
}

// transitions lists the legal edges of the slot state machine. Reset moves
// any slot back to SlotIdle without consulting this table.
var transitions = map[format.SlotState][]format.SlotState{
	format.SlotIdle:      {format.SlotStaged},
	format.SlotStaged:    {format.SlotSubmitted, format.SlotCompleted, format.SlotFaulted},
	format.SlotSubmitted: {format.SlotCompleted, format.SlotFaulted},
	format.SlotCompleted: {format.SlotHarvested, format.SlotFaulted},
	format.SlotHarvested: {format.SlotIdle},
}

// Slot is one buffer and engine pair of a Scheduler.
//
// A slot is owned by its scheduler and handed to the caller between Acquire
// and Release. Its buffers are reused for every block it carries.
type Slot struct {
	index  int
	engine engine.Engine
	state  format.SlotState
	taken  bool

	in  *[]byte
	out *[]byte

	block  Block
	src    []byte
	dst    []byte
	handle *engine.Handle
	bypass bool
	raw    bool
	n      int
}

// Index returns the slot number, which is also the index of its engine in the lease.
func (s *Slot) Index() int {
	return s.index
}

// State returns the current state of the slot.
func (s *Slot) State() format.SlotState {
	return s.state
}

// Block returns the block staged in the slot.
func (s *Slot) Block() Block {
	return s.block
}

// In returns the slot's input staging buffer, or nil if the scheduler was
// created without one.
func (s *Slot) In() []byte {
	if s.in == nil {
		return nil
	}

	return *s.in
}

// Out returns the slot's engine output buffer, or nil if the scheduler was
// created without one.
func (s *Slot) Out() []byte {
	if s.out == nil {
		return nil
	}

	return *s.out
}

// Raw reports whether the harvested payload is stored raw: the compressor
// fell back to the input bytes, or the block bypassed the engine.
func (s *Slot) Raw() bool {
	return s.raw
}

// Payload returns the harvested bytes.
//
// For compression it is the compressed block, or the raw input when Raw
// reports true. For decompression it is the decoded block.
func (s *Slot) Payload() []byte {
	if s.raw {
		return s.src
	}

	return s.dst[:s.n]
}

func (s *Slot) transit(to format.SlotState) error {
	for _, next := range transitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}

	return errors.Wrapf(errs.ErrInvalidSlotState, "slot %d: %s -> %s", s.index, s.state, to)
}

func (s *Slot) clear() {
	s.state = format.SlotIdle
	s.taken = false
	s.block = Block{}
	s.src, s.dst = nil, nil
	s.handle = nil
	s.bypass, s.raw = false, false
	s.n = 0
}
