package btrace

import (
	"testing"

	"github.com/keurnel/btrace/internal/arch"
	"github.com/keurnel/btrace/internal/symbols"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// countingProvider - wraps ScriptProvider and counts Enable calls.
type countingProvider struct {
	*ScriptProvider
	enables int
}

func (p *countingProvider) Enable(tid int, conf *Config) (Target, error) {
	p.enables++
	return p.ScriptProvider.Enable(tid, conf)
}

func newFetchFixture(t *testing.T) (*Engine, *Thread, *ScriptTarget, *countingProvider) {
	t.Helper()

	oracle, table := testProgram()
	target := NewScriptTarget()
	provider := &countingProvider{ScriptProvider: NewScriptProvider(target)}
	e := New(provider, oracle, table)

	th := &Thread{ID: 7, PC: 0x100}
	return e, th, target, provider
}

func enable(t *testing.T, e *Engine, th *Thread) {
	t.Helper()
	if err := e.Enable(th, &Config{Format: FormatBTS}); err != nil {
		t.Fatalf("enable: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tests: enable / disable
// ---------------------------------------------------------------------------

func TestEngine_EnableSeedsCurrentPC(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)
	enable(t, e, th)

	// The trace holds a single segment with the current PC, so iteration
	// is defined right away - and empty.
	segs := requireSegCount(t, &th.Btrace, 1)
	if len(segs[0].Insns) != 1 || segs[0].Insns[0].PC != 0x100 {
		t.Errorf("expected a single insn at the current PC, got %+v", segs[0].Insns)
	}
	if !e.IsEmpty(th) {
		t.Error("expected a freshly enabled trace to iterate as empty")
	}
}

func TestEngine_EnableIdempotent(t *testing.T) {
	e, th, _, provider := newFetchFixture(t)

	enable(t, e, th)
	enable(t, e, th)

	if provider.enables != 1 {
		t.Errorf("expected a single producer enable, got %d", provider.enables)
	}
}

func TestEngine_EnableUnsupportedFormat(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)

	err := e.Enable(th, &Config{Format: FormatNone})
	if err != ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if th.Btrace.target != nil {
		t.Error("expected the thread to stay untraced")
	}
}

func TestEngine_DisableClearsTrace(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	e.Disable(th)

	if !target.Disabled() {
		t.Error("expected the producer recording to be disabled")
	}
	if th.Btrace.target != nil || th.Btrace.BeginFunc() != nil {
		t.Error("expected the trace to be dropped")
	}

	// Disabling again is harmless.
	e.Disable(th)
}

func TestEngine_Teardown(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	e.Teardown(th)

	if !target.TornDown() {
		t.Error("expected the producer recording to be torn down")
	}
	if th.Btrace.target != nil || th.Btrace.BeginFunc() != nil {
		t.Error("expected the trace to be dropped")
	}
}

// ---------------------------------------------------------------------------
// Tests: fetch
// ---------------------------------------------------------------------------

func TestEngine_FetchUntracedIsNoop(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)

	// Never enabled: nothing happens, nothing fails.
	if err := e.Fetch(th); err != nil {
		t.Fatalf("expected a silent no-op, got %v", err)
	}
	if th.Btrace.BeginFunc() != nil {
		t.Error("expected no trace")
	}
}

func TestEngine_FetchWhileReplayingIsNoop(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	it, err := th.Btrace.InsnBegin()
	if err != nil {
		t.Fatal(err)
	}
	th.Btrace.SetReplay(&it)

	target.Push(ReadDelta, &Data{Format: FormatBTS, Blocks: []Block{{0, 0x108}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("expected a silent no-op, got %v", err)
	}

	// The queued delta was never read.
	segs := requireSegCount(t, &th.Btrace, 1)
	if len(segs[0].Insns) != 1 {
		t.Error("expected the trace to be unchanged while replaying")
	}
}

func TestEngine_FetchDelta(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	// The thread ran from 0x100 to 0x108 since enabling.
	target.Push(ReadDelta, &Data{Format: FormatBTS, Blocks: []Block{{0, 0x108}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	segs := requireSegCount(t, &th.Btrace, 1)
	if got := len(segs[0].Insns); got != 9 {
		t.Errorf("expected 9 insns after the delta, got %d", got)
	}
	requireMonotone(t, &th.Btrace)
}

func TestEngine_FetchNoProgress(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	th.Btrace.SetInsnHistory(InsnIterator{}, InsnIterator{})

	// The delta holds only the partial block around the unchanged PC.
	target.Push(ReadDelta, &Data{Format: FormatBTS, Blocks: []Block{{0, 0x100}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	segs := requireSegCount(t, &th.Btrace, 1)
	if len(segs[0].Insns) != 1 {
		t.Error("expected the trace to be unchanged")
	}

	// No rebuild happened, so the saved history survived.
	if th.Btrace.GetInsnHistory() == nil {
		t.Error("expected the history to survive a no-progress fetch")
	}
}

func TestEngine_FetchStitchFailureFallsBackToNew(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	// An impossible delta: it ends before the current trace. The engine
	// drops it and reads new trace instead, which replaces everything.
	target.Push(ReadDelta, &Data{Format: FormatBTS, Blocks: []Block{{0, 0x0}}})
	target.Push(ReadNew, &Data{Format: FormatBTS, Blocks: []Block{{0x200, 0x204}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	segs := requireSegCount(t, &th.Btrace, 1)
	requireSeg(t, &th.Btrace, segs[0], "bar", 0, 5)
}

func TestEngine_FetchReadFailureFallsBackToFull(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	// No delta queued: the delta read fails, the engine clears and
	// re-reads everything.
	target.Push(ReadAll, &Data{Format: FormatBTS, Blocks: []Block{{0x100, 0x108}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	segs := requireSegCount(t, &th.Btrace, 1)
	if got := len(segs[0].Insns); got != 9 {
		t.Errorf("expected 9 insns after the full re-read, got %d", got)
	}
}

func TestEngine_FetchAllReadsFail(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)
	enable(t, e, th)

	// Nothing queued at all: every read fails and the failure surfaces.
	if err := e.Fetch(th); err == nil {
		t.Fatal("expected the fetch to fail")
	}
}

func TestEngine_FetchDiscardsHistories(t *testing.T) {
	e, th, target, _ := newFetchFixture(t)
	enable(t, e, th)

	th.Btrace.SetInsnHistory(InsnIterator{}, InsnIterator{})
	begin, err := th.Btrace.CallBegin()
	if err != nil {
		t.Fatal(err)
	}
	th.Btrace.SetCallHistory(begin, begin)

	target.Push(ReadDelta, &Data{Format: FormatBTS, Blocks: []Block{{0, 0x108}}})

	if err := e.Fetch(th); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// The rebuild may have pruned instructions the saved cursors named.
	if th.Btrace.GetInsnHistory() != nil || th.Btrace.GetCallHistory() != nil {
		t.Error("expected saved histories to be discarded by the rebuild")
	}
}

// ---------------------------------------------------------------------------
// Tests: exported surface
// ---------------------------------------------------------------------------

func TestEngine_ConfUntraced(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)

	conf, err := e.Conf(th)
	if err != nil || conf != nil {
		t.Errorf("expected (nil, nil) for an untraced thread, got (%v, %v)", conf, err)
	}
}

func TestEngine_Conf(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)
	enable(t, e, th)

	conf, err := e.Conf(th)
	if err != nil {
		t.Fatal(err)
	}
	if conf == nil || conf.Format != FormatBTS {
		t.Errorf("expected the BTS configuration back, got %+v", conf)
	}
}

func TestEngine_IsReplaying(t *testing.T) {
	e, th, _, _ := newFetchFixture(t)
	enable(t, e, th)

	if e.IsReplaying(th) {
		t.Error("expected no replay by default")
	}

	it, err := th.Btrace.InsnBegin()
	if err != nil {
		t.Fatal(err)
	}
	th.Btrace.SetReplay(&it)

	if !e.IsReplaying(th) {
		t.Error("expected the thread to be replaying")
	}
}

// Compile-time interface checks for the scripted producer.
var (
	_ Provider = (*ScriptProvider)(nil)
	_ Target   = (*ScriptTarget)(nil)
	_ arch.Oracle = (*arch.Scripted)(nil)
	_ symbols.Resolver = (*symbols.Table)(nil)
)
