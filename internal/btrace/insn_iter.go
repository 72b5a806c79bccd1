package btrace

// InsnIterator - a position within the instruction history of one thread.
// Iterators are borrowed views: they become invalid when the trace they
// point into is cleared or rebuilt, and must then be re-seated with
// FindInsnByNumber.
type InsnIterator struct {
	btinfo *ThreadInfo
	fn     FuncRef
	index  int
}

// InsnBegin returns an iterator on the first instruction of the trace.
func (bt *ThreadInfo) InsnBegin() (InsnIterator, error) {
	if bt.begin == NoFunc {
		return InsnIterator{}, ErrNoTrace
	}

	return InsnIterator{btinfo: bt, fn: bt.begin, index: 0}, nil
}

// InsnEnd returns an iterator one past the last iterable instruction. The
// trace's very last instruction is the current PC; it has not been executed
// and is excluded from iteration.
func (bt *ThreadInfo) InsnEnd() (InsnIterator, error) {
	if bt.end == NoFunc {
		return InsnIterator{}, ErrNoTrace
	}

	length := len(bt.fn(bt.end).Insns)

	// The last segment is either a gap or it contains the current
	// instruction, which is one past the end of the execution history.
	if length > 0 {
		length--
	}

	return InsnIterator{btinfo: bt, fn: bt.end, index: length}, nil
}

// Get returns the instruction the iterator points at, nil when it points
// into a gap.
func (it *InsnIterator) Get() *Insn {
	f := it.btinfo.fn(it.fn)

	if f.IsGap() {
		return nil
	}

	return &f.Insns[it.index]
}

// Number returns the global 1-based number of the instruction, 0 when the
// iterator points into a gap.
func (it *InsnIterator) Number() int {
	f := it.btinfo.fn(it.fn)

	if f.IsGap() {
		return 0
	}

	return f.InsnOffset + it.index
}

// Next advances the iterator by at most stride instructions and returns the
// number of instructions actually stepped. A gap counts as one instruction.
// The iterator never moves past the end position.
func (it *InsnIterator) Next(stride int) int {
	bt := it.btinfo
	fn := it.fn
	index := it.index
	steps := 0

	for stride != 0 {
		f := bt.fn(fn)
		end := len(f.Insns)

		// An empty segment represents a gap; it counts as a single
		// instruction.
		if end == 0 {
			next := f.flowNext
			if next == NoFunc {
				break
			}

			stride--
			steps++

			fn = next
			index = 0
			continue
		}

		// Advance as far as possible within this segment.
		space := end - index
		adv := min(space, stride)

		stride -= adv
		index += adv
		steps += adv

		// Move to the next segment once past the end of this one.
		if index == end {
			next := f.flowNext
			if next == NoFunc {
				// We stepped past the last instruction; move
				// back onto it.
				index--
				steps--
				break
			}

			fn = next
			index = 0
		}
	}

	it.fn = fn
	it.index = index

	return steps
}

// Prev moves the iterator back by at most stride instructions and returns
// the number of instructions actually stepped. A gap counts as one
// instruction.
func (it *InsnIterator) Prev(stride int) int {
	bt := it.btinfo
	fn := it.fn
	index := it.index
	steps := 0

	for stride != 0 {
		// Move to the previous segment when at the start of this one.
		if index == 0 {
			f := bt.fn(fn)

			prev := f.flowPrev
			if prev == NoFunc {
				break
			}

			// Point one past the last instruction of the new
			// segment.
			fn = prev
			index = len(bt.fn(prev).Insns)

			// An empty segment represents a gap; it counts as a
			// single instruction.
			if index == 0 {
				stride--
				steps++
				continue
			}
		}

		adv := min(index, stride)

		stride -= adv
		index -= adv
		steps += adv
	}

	it.fn = fn
	it.index = index

	return steps
}

// Cmp orders two iterators over the same trace: negative when it comes
// before other, zero when equal, positive when after.
//
// Gaps carry instruction number zero, so comparisons involving gaps fall
// back to the segment's instruction offset; a gap adjoining a real
// instruction orders strictly before it.
func (it *InsnIterator) Cmp(other *InsnIterator) int {
	lnum := it.Number()
	rnum := other.Number()

	if lnum == 0 && rnum == 0 {
		lnum = it.btinfo.fn(it.fn).InsnOffset
		rnum = other.btinfo.fn(other.fn).InsnOffset
	} else if lnum == 0 {
		lnum = it.btinfo.fn(it.fn).InsnOffset

		if lnum == rnum {
			lnum--
		}
	} else if rnum == 0 {
		rnum = other.btinfo.fn(other.fn).InsnOffset

		if rnum == lnum {
			rnum--
		}
	}

	return lnum - rnum
}

// FindInsnByNumber returns an iterator on the instruction with the given
// global number. The second result is false when no real instruction has
// that number.
func (bt *ThreadInfo) FindInsnByNumber(number int) (InsnIterator, bool) {
	var found *Func

	for f := bt.fn(bt.end); f != nil; f = bt.fn(f.flowPrev) {
		// Skip gaps.
		if f.IsGap() {
			continue
		}

		if f.InsnOffset <= number {
			found = f
			break
		}
	}

	if found == nil {
		return InsnIterator{}, false
	}

	if found.InsnOffset+len(found.Insns) <= number {
		return InsnIterator{}, false
	}

	return InsnIterator{
		btinfo: bt,
		fn:     found.ref,
		index:  number - found.InsnOffset,
	}, true
}
