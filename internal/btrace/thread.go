package btrace

// Thread - one traced thread. The engine only reads ID and PC; the embedded
// ThreadInfo is owned by the engine and must not be touched while any engine
// entry point runs on another thread of control.
type Thread struct {
	// ID identifies the thread towards the trace producer.
	ID int

	// PC is the thread's current program counter, kept up to date by the
	// target layer.
	PC uint64

	// Btrace holds the reconstructed trace.
	Btrace ThreadInfo
}

// FuncRef - stable reference to a function segment in a thread's arena. The
// zero value references nothing. References stay valid until Clear.
type FuncRef int

// NoFunc - the null segment reference.
const NoFunc FuncRef = 0

// ThreadInfo - per-thread branch trace state. Function segments live in a
// bump arena and reference each other by index, so a rebuild never leaves
// dangling pointers and Clear is a single reset.
type ThreadInfo struct {
	arena []Func

	begin FuncRef // Chronologically first segment.
	end   FuncRef // Chronologically last segment.

	ngaps int // Number of gap segments.

	// level is the offset added to every segment's raw level so that the
	// minimum across non-gap segments becomes zero.
	level int

	target Target // Producer handle; nil when tracing is disabled.

	// replay is non-nil while the user is stepping through history. New
	// trace must not be fetched then: a delta read would return a partial
	// record relative to the replay position.
	replay *InsnIterator

	insnHistory *InsnHistory
	callHistory *CallHistory
}

// fn - dereferences a segment. fn(NoFunc) is nil.
func (bt *ThreadInfo) fn(r FuncRef) *Func {
	if r == NoFunc {
		return nil
	}
	return &bt.arena[int(r)-1]
}

// BeginFunc returns the chronologically first function segment, nil without
// trace.
func (bt *ThreadInfo) BeginFunc() *Func {
	return bt.fn(bt.begin)
}

// EndFunc returns the chronologically last function segment, nil without
// trace.
func (bt *ThreadInfo) EndFunc() *Func {
	return bt.fn(bt.end)
}

// Level returns the global level offset. The displayed stack depth of a
// segment is its Level field plus this offset.
func (bt *ThreadInfo) Level() int {
	return bt.level
}

// Gaps returns the number of gap segments in the trace.
func (bt *ThreadInfo) Gaps() int {
	return bt.ngaps
}

// Up returns f's call-stack parent, nil at top level.
func (bt *ThreadInfo) Up(f *Func) *Func {
	return bt.fn(f.up)
}

// FlowPrev returns f's chronological predecessor.
func (bt *ThreadInfo) FlowPrev(f *Func) *Func {
	return bt.fn(f.flowPrev)
}

// FlowNext returns f's chronological successor.
func (bt *ThreadInfo) FlowNext(f *Func) *Func {
	return bt.fn(f.flowNext)
}

// SegPrev returns the previous segment of the same function instance.
func (bt *ThreadInfo) SegPrev(f *Func) *Func {
	return bt.fn(f.segPrev)
}

// SegNext returns the next segment of the same function instance.
func (bt *ThreadInfo) SegNext(f *Func) *Func {
	return bt.fn(f.segNext)
}

// Replay returns the saved replay cursor, nil when not replaying.
func (bt *ThreadInfo) Replay() *InsnIterator {
	return bt.replay
}

// SetReplay installs (or, with nil, removes) the replay cursor.
func (bt *ThreadInfo) SetReplay(it *InsnIterator) {
	bt.replay = it
}

// InsnHistory - a saved instruction cursor range.
type InsnHistory struct {
	Begin InsnIterator
	End   InsnIterator
}

// CallHistory - a saved call cursor range.
type CallHistory struct {
	Begin CallIterator
	End   CallIterator
}

// GetInsnHistory returns the saved instruction history range, nil if none.
func (bt *ThreadInfo) GetInsnHistory() *InsnHistory {
	return bt.insnHistory
}

// GetCallHistory returns the saved call history range, nil if none.
func (bt *ThreadInfo) GetCallHistory() *CallHistory {
	return bt.callHistory
}

// SetInsnHistory saves an instruction cursor range.
func (bt *ThreadInfo) SetInsnHistory(begin, end InsnIterator) {
	bt.insnHistory = &InsnHistory{Begin: begin, End: end}
}

// SetCallHistory saves a call cursor range.
func (bt *ThreadInfo) SetCallHistory(begin, end CallIterator) {
	bt.callHistory = &CallHistory{Begin: begin, End: end}
}

// clearHistory - drops the cursor histories and the replay position. Called
// whenever the trace is about to change underneath saved cursors.
func (bt *ThreadInfo) clearHistory() {
	bt.insnHistory = nil
	bt.callHistory = nil
	bt.replay = nil
}

// clear - resets the trace to empty. The arena is dropped as a whole; all
// outstanding FuncRefs and cursors become invalid.
func (bt *ThreadInfo) clear() {
	bt.arena = nil
	bt.begin = NoFunc
	bt.end = NoFunc
	bt.ngaps = 0
	bt.level = 0
	bt.clearHistory()
}
