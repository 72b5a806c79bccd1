package btrace

import "github.com/pkg/errors"

// stitchBTS - adjusts a freshly read BTS delta so that rebuilding continues
// the existing trace of th. May modify both data and the existing trace.
//
// Returning an error means the delta cannot be anchored; the caller falls
// back to a full re-read.
func (e *Engine) stitchBTS(th *Thread, data *Data) error {
	bt := &th.Btrace

	last := bt.fn(bt.end)
	if last == nil {
		panic("btrace: stitching without an existing trace")
	}
	if len(data.Blocks) == 0 {
		panic("btrace: stitching an empty delta")
	}

	// If the existing trace ends with a gap, the traces are simply glued
	// together. The chronologically first block of the delta has to be
	// dropped, though: its start address cannot be filled in.
	if len(last.Insns) == 0 {
		data.Blocks = data.Blocks[:len(data.Blocks)-1]
		return nil
	}

	// The block trace starts with the most recent block, so the
	// chronologically first block of the delta is the last element.
	firstNew := &data.Blocks[len(data.Blocks)-1]
	lastInsn := last.lastInsn()

	// If the current PC at the end of the block equals the one in our
	// trace, either some branch brought us back here after executing the
	// instruction, or no progress was made at all. In the first case the
	// delta holds at least two blocks; in the second it holds exactly one
	// block for the partial block around the current PC. Remove it.
	if firstNew.End == lastInsn.PC && len(data.Blocks) == 1 {
		data.Blocks = data.Blocks[:0]
		return nil
	}

	e.log.Debugf("stitching %#x to %#x", lastInsn.PC, firstNew.End)

	// A delta ending before our current position cannot be valid.
	if firstNew.End < lastInsn.PC {
		return errors.New("delta trace ends before the current trace")
	}

	// Anchor the oldest delta block to where the trace currently ends.
	firstNew.Begin = lastInsn.PC

	// Pop the last instruction; the rebuild regenerates it as part of the
	// anchored block. Instruction cursors are index-based, so nothing is
	// left dangling.
	e.log.Debugf("pruning insn at %#x for stitching", lastInsn.PC)
	last.Insns = last.Insns[:len(last.Insns)-1]

	// If that was the only instruction of the only segment, the rebuild
	// would turn the now empty segment into a gap at the very beginning of
	// the trace. Remove the old trace entirely instead.
	if bt.end == bt.begin && len(last.Insns) == 0 {
		e.Clear(th)
	}

	return nil
}

// stitchTrace - glues a delta read onto the existing trace, dispatching by
// format. An empty delta needs no stitching.
func (e *Engine) stitchTrace(th *Thread, data *Data) error {
	if data.Empty() {
		return nil
	}

	switch data.Format {
	case FormatNone:
		return nil

	case FormatBTS:
		return e.stitchBTS(th, data)
	}

	panic("btrace: unknown branch trace format")
}
