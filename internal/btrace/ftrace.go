package btrace

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/keurnel/btrace/internal/arch"
	"github.com/keurnel/btrace/internal/symbols"
)

// FuncFlag - properties of a function segment's caller link.
type FuncFlag uint8

const (
	// FlagUpLinksToTailcall - the up link points to a tail caller: the
	// segment was entered via a jump, not a call.
	FlagUpLinksToTailcall FuncFlag = 1 << iota

	// FlagUpLinksToReturn - the up link was synthesized from a return for
	// which the trace did not contain the matching call.
	FlagUpLinksToReturn
)

// Insn - one executed instruction. Immutable once appended.
type Insn struct {
	PC uint64

	// Size is the byte length of the instruction; 0 when the architecture
	// oracle failed to decode it.
	Size int

	Class arch.Class
}

// Func - one function segment: a contiguous residence in one function
// instance. A function instance interrupted by nested calls consists of
// several segments chained through the segment links.
//
// A segment with a nonzero ErrCode is a gap: it carries no instructions and
// no symbols and represents unrecoverable decode loss.
type Func struct {
	// MSym and Sym are the two symbol flavors for this function; either
	// may be nil.
	MSym *symbols.Minimal
	Sym  *symbols.Function

	// Insns are the instructions executed during this residence.
	Insns []Insn

	// Number is the 1-based chronological index of this segment; strictly
	// monotone along the flow chain.
	Number int

	// InsnOffset is the 1-based global number of this segment's first
	// instruction.
	InsnOffset int

	// Level is the raw stack depth. It may be negative during
	// construction; add the thread's level offset to display it.
	Level int

	// ErrCode is nonzero for gaps.
	ErrCode GapCode

	Flags FuncFlag

	ref                FuncRef // This segment's own reference.
	flowPrev, flowNext FuncRef // Chronological neighbors.
	segPrev, segNext   FuncRef // Neighbors within the same instance.
	up                 FuncRef // Call-stack parent; NoFunc at top level.
}

// IsGap reports whether f represents a decode gap.
func (f *Func) IsGap() bool {
	return f.ErrCode != GapNone
}

// PrintName returns the function name for printing. Never empty.
func (f *Func) PrintName() string {
	return symbols.PrintName(f.MSym, f.Sym)
}

// lastInsn - the segment's last instruction, nil when the segment is empty.
func (f *Func) lastInsn() *Insn {
	if len(f.Insns) == 0 {
		return nil
	}
	return &f.Insns[len(f.Insns)-1]
}

// debugFtrace - emits a segment status line on the debug channel.
func (e *Engine) debugFtrace(bt *ThreadInfo, r FuncRef, prefix string) {
	if !e.log.Logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	f := bt.fn(r)
	e.log.Debugf("[ftrace] %s: fun = %s, file = %s, level = %d, insn = [%d; %d)",
		prefix, f.PrintName(), symbols.PrintFile(f.Sym), f.Level,
		f.InsnOffset, f.InsnOffset+len(f.Insns))
}

// newFunction - allocates a segment in the arena and splices it into the
// flow chain after prev. Number, InsnOffset and the initial Level are taken
// from prev.
func (bt *ThreadInfo) newFunction(prev FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	bt.arena = append(bt.arena, Func{MSym: msym, Sym: sym})
	ref := FuncRef(len(bt.arena))

	f := bt.fn(ref)
	f.ref = ref
	f.flowPrev = prev

	if prev == NoFunc {
		// Start counting at one.
		f.Number = 1
		f.InsnOffset = 1
	} else {
		p := bt.fn(prev)
		if p.flowNext != NoFunc {
			panic("btrace: appending after a segment that already has a successor")
		}
		p.flowNext = ref

		f.Number = p.Number + 1
		f.InsnOffset = p.InsnOffset + len(p.Insns)
		f.Level = p.Level
	}

	return ref
}

// updateCaller - rewrites the caller link of a single segment.
func (e *Engine) updateCaller(bt *ThreadInfo, r, caller FuncRef, flags FuncFlag) {
	if bt.fn(r).up != NoFunc {
		e.debugFtrace(bt, r, "updating caller")
	}

	f := bt.fn(r)
	f.up = caller
	f.Flags = flags

	e.debugFtrace(bt, r, "set caller")
}

// fixupCaller - rewrites the caller link on r and on every segment of the
// same function instance.
func (e *Engine) fixupCaller(bt *ThreadInfo, r, caller FuncRef, flags FuncFlag) {
	e.updateCaller(bt, r, caller, flags)

	for p := bt.fn(r).segPrev; p != NoFunc; p = bt.fn(p).segPrev {
		e.updateCaller(bt, p, caller, flags)
	}
	for n := bt.fn(r).segNext; n != NoFunc; n = bt.fn(n).segNext {
		e.updateCaller(bt, n, caller, flags)
	}
}

// newCall - opens a new frame called from caller.
func (e *Engine) newCall(bt *ThreadInfo, caller FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	ref := bt.newFunction(caller, msym, sym)

	f := bt.fn(ref)
	f.up = caller
	f.Level++

	e.debugFtrace(bt, ref, "new call")
	return ref
}

// newTailcall - opens a new frame entered via a jump from caller.
func (e *Engine) newTailcall(bt *ThreadInfo, caller FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	ref := bt.newFunction(caller, msym, sym)

	f := bt.fn(ref)
	f.up = caller
	f.Level++
	f.Flags |= FlagUpLinksToTailcall

	e.debugFtrace(bt, ref, "new tail call")
	return ref
}

// findCaller - walks the up-chain of r for a segment with matching symbol
// information. Gaps and mismatching segments are skipped.
func (e *Engine) findCaller(bt *ThreadInfo, r FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	for ; r != NoFunc; r = bt.fn(r).up {
		f := bt.fn(r)

		if f.IsGap() {
			continue
		}
		if symbols.Switched(f.MSym, f.Sym, msym, sym) {
			continue
		}

		break
	}

	return r
}

// findCall - walks the up-chain of r for a segment whose last instruction is
// a call. Tail calls end with a jump and are skipped, as are gaps.
func (e *Engine) findCall(bt *ThreadInfo, r FuncRef) FuncRef {
	for ; r != NoFunc; r = bt.fn(r).up {
		f := bt.fn(r)

		if f.IsGap() {
			continue
		}

		last := f.lastInsn()
		if last != nil && last.Class == arch.ClassCall {
			break
		}
	}

	return r
}

// newReturn - adds a continuation segment for the function we return into.
func (e *Engine) newReturn(bt *ThreadInfo, prev FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	ref := bt.newFunction(prev, msym, sym)

	// Start the search at PREV's caller. Starting at PREV itself would
	// find PREV again if PREV is recursive.
	caller := e.findCaller(bt, bt.fn(prev).up, msym, sym)
	if caller != NoFunc {
		// The caller is the preceding segment of the instance we return
		// into.
		c := bt.fn(caller)
		if c.segNext != NoFunc {
			panic("btrace: return into an instance that already continued")
		}

		f := bt.fn(ref)
		c.segNext = ref
		f.segPrev = caller

		f.Level = c.Level
		f.up = c.up
		f.Flags = c.Flags

		e.debugFtrace(bt, ref, "new return")
		return ref
	}

	// We did not find a caller. Either something went wrong or the call is
	// simply not included in the trace.
	caller = e.findCall(bt, bt.fn(prev).up)
	if caller == NoFunc {
		// There is no call in PREV's back trace at all; the trace must
		// have started after the call.

		// Find the topmost function - this skips tail calls.
		top := prev
		for bt.fn(top).up != NoFunc {
			top = bt.fn(top).up
		}

		// We maintain levels for a series of returns for which we have
		// not seen the calls: each synthetic outer frame is one level
		// below the previous one, starting below zero.
		f := bt.fn(ref)
		f.Level = min(0, bt.fn(top).Level) - 1

		// Retroactively declare the whole topmost instance to be called
		// by the segment we just created.
		e.fixupCaller(bt, top, ref, FlagUpLinksToReturn)

		e.debugFtrace(bt, ref, "new return - no caller")
	} else {
		// There is a call in PREV's back trace to which we should have
		// returned. Remain at this level.
		bt.fn(ref).Level = bt.fn(prev).Level

		e.debugFtrace(bt, ref, "new return - unknown caller")
	}

	return ref
}

// newSwitch - adds a segment for an unexplained change of function identity.
// The trace most likely omitted a call or return here; the call stack is not
// touched.
func (e *Engine) newSwitch(bt *ThreadInfo, prev FuncRef, msym *symbols.Minimal, sym *symbols.Function) FuncRef {
	ref := bt.newFunction(prev, msym, sym)
	e.debugFtrace(bt, ref, "new switch")
	return ref
}

// newGap - adds a gap segment for a decode error. An empty non-gap tail
// segment is reused instead of growing the chain.
func (e *Engine) newGap(bt *ThreadInfo, prev FuncRef, code GapCode) FuncRef {
	ref := prev
	if prev == NoFunc || bt.fn(prev).IsGap() || len(bt.fn(prev).Insns) != 0 {
		ref = bt.newFunction(prev, nil, nil)
	}

	bt.fn(ref).ErrCode = code

	e.debugFtrace(bt, ref, "new gap")
	return ref
}

// updateFunction - decides, for the instruction at pc, whether the trace
// stays in cur or transitions to a new segment, and returns the
// chronologically latest segment. Never returns NoFunc.
func (e *Engine) updateFunction(bt *ThreadInfo, cur FuncRef, pc uint64) FuncRef {
	// Use both symbol flavors to avoid surprises when we sometimes get a
	// full symbol and sometimes only a minimal one.
	sym := e.syms.FunctionAt(pc)
	msym := e.syms.MinimalAt(pc)

	if sym == nil && msym == nil {
		e.log.Debugf("[ftrace] no symbol at %#x", pc)
	}

	// Without a current segment, or after a gap, a fresh flow-linked
	// segment starts.
	if cur == NoFunc || bt.fn(cur).IsGap() {
		return bt.newFunction(cur, msym, sym)
	}

	// Check the last instruction, if there is one. This check comes first
	// since it fills in the call stack links in addition to the flow
	// links.
	if last := bt.fn(cur).lastInsn(); last != nil {
		switch last.Class {
		case arch.ClassReturn:
			// On some systems, _dl_runtime_resolve returns to the
			// resolved function instead of jumping to it. Treating
			// that as a return would drop the stack back trace we
			// have; treat it as a tail call so the resolved function
			// stays linked to the same back trace.
			if bt.fn(cur).PrintName() == "_dl_runtime_resolve" {
				return e.newTailcall(bt, cur, msym, sym)
			}

			return e.newReturn(bt, cur, msym, sym)

		case arch.ClassCall:
			// Ignore calls to the next instruction. They are used
			// for PIC.
			if last.PC+uint64(last.Size) != pc {
				return e.newCall(bt, cur, msym, sym)
			}

		case arch.ClassJump:
			start, known := e.syms.FunctionEntry(pc)

			// A jump to the start of a function, or to a place we
			// cannot attribute to a function, is a tail call.
			if !known || start == pc {
				return e.newTailcall(bt, cur, msym, sym)
			}
		}
	}

	// Check if we're switching functions for some other reason.
	if symbols.Switched(bt.fn(cur).MSym, bt.fn(cur).Sym, msym, sym) {
		e.log.Debugf("[ftrace] switching from %s at %#x", bt.fn(cur).PrintName(), pc)
		return e.newSwitch(bt, cur, msym, sym)
	}

	return cur
}

// updateInsns - appends insn to the segment's instruction list.
func (e *Engine) updateInsns(bt *ThreadInfo, r FuncRef, insn Insn) {
	f := bt.fn(r)
	f.Insns = append(f.Insns, insn)

	if e.log.Logger.IsLevelEnabled(log.TraceLevel) {
		e.debugFtrace(bt, r, "update insn")
	}
}

// computeFtraceBTS - folds a BTS block list into the thread's function
// trace. Blocks are in reverse chronological order; they are walked from
// oldest to newest.
func (e *Engine) computeFtraceBTS(th *Thread, data *Data) {
	bt := &th.Btrace

	begin := bt.begin
	end := bt.end
	ngaps := bt.ngaps

	level := math.MaxInt
	if begin != NoFunc {
		level = -bt.level
	}

	for blk := len(data.Blocks) - 1; blk >= 0; blk-- {
		block := data.Blocks[blk]
		pc := block.Begin

		for {
			// We should hit the end of the block. Warn if we went
			// too far.
			if block.End < pc {
				// Indicate the gap in the trace - unless we're
				// at the beginning.
				if begin != NoFunc {
					e.log.Warnf("recorded trace may be corrupted around %#x", pc)

					end = e.newGap(bt, end, GapOverflow)
					ngaps++
				}
				break
			}

			end = e.updateFunction(bt, end, pc)
			if begin == NoFunc {
				begin = end
			}

			// Maintain the function level offset. For all but the
			// last block, we do it here.
			if blk != 0 {
				level = min(level, bt.fn(end).Level)
			}

			size := e.arch.Length(pc)

			e.updateInsns(bt, end, Insn{
				PC:    pc,
				Size:  size,
				Class: e.arch.Classify(pc),
			})

			// We're done once we pushed the instruction at the end.
			if block.End == pc {
				break
			}

			// We can't continue if we fail to compute the size.
			if size <= 0 {
				e.log.Warnf("recorded trace may be incomplete around %#x", pc)

				end = e.newGap(bt, end, GapInsnSize)
				ngaps++
				break
			}

			pc += uint64(size)

			// For the last block, the level is maintained here so
			// the last instruction is not considered: it is the
			// current PC and has not been executed.
			if blk == 0 {
				level = min(level, bt.fn(end).Level)
			}
		}
	}

	bt.begin = begin
	bt.end = end
	bt.ngaps = ngaps

	// A fresh trace holding only the current PC has no executed
	// instruction to take a level from; its single segment sits at zero.
	if level == math.MaxInt {
		level = 0
	}

	// LEVEL is the minimal level over all segments. The global offset
	// -LEVEL normalizes displayed levels to start at zero.
	bt.level = -level
}

// computeFtrace - dispatches trace computation by format.
func (e *Engine) computeFtrace(th *Thread, data *Data) {
	e.log.Debug("compute ftrace")

	switch data.Format {
	case FormatNone:
		return

	case FormatBTS:
		e.computeFtraceBTS(th, data)
		return
	}

	panic("btrace: unknown branch trace format")
}
