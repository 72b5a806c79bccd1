// Package btrace reconstructs a function-call trace from a hardware branch
// trace: a list of executed basic blocks, reported newest-first by the
// producer.
//
// The reconstruction folds blocks oldest-to-newest into a chain of function
// segments. Segments are linked three ways: chronologically (the flow
// chain), within one function activation interrupted by nested calls (the
// instance chain), and towards the calling activation (the up link). Call
// nesting is inferred from the classification of each block's last
// instruction; tail calls, PIC call-to-next-instruction idioms, dynamic
// linker trampolines, returns without a recorded call, and decode gaps all
// receive dedicated treatment.
//
// Two cursor types iterate the result: InsnIterator over individual
// instructions and CallIterator over function segments. Both are borrowed
// views that a Clear or rebuild invalidates; they re-seat through
// FindInsnByNumber and FindCallByNumber.
//
// The engine is single-threaded cooperative: every entry point runs on the
// debugger's control thread, blocking reads included. Per-thread state is
// owned by its Thread and never shared.
package btrace
