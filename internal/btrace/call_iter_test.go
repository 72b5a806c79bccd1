package btrace

import "testing"

// callTrace - foo calls bar, bar returns, foo continues: segments numbered
// 1 (foo), 2 (bar), 3 (foo). The last segment holds more than one
// instruction, so it is a visible part of the history.
func callTrace(t *testing.T) *Thread {
	t.Helper()

	e := newTestEngine(testProgram())
	return buildTrace(e, []Block{
		{0x100, 0x103},
		{0x200, 0x204},
		{0x104, 0x108},
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCallIterator_Empty(t *testing.T) {
	bt := &ThreadInfo{}

	if _, err := bt.CallBegin(); err == nil {
		t.Error("expected an error on an empty trace")
	}
	if _, err := bt.CallEnd(); err == nil {
		t.Error("expected an error on an empty trace")
	}
}

func TestCallIterator_Forward(t *testing.T) {
	th := callTrace(t)
	bt := &th.Btrace

	it, err := bt.CallBegin()
	if err != nil {
		t.Fatal(err)
	}

	for want := 1; want <= 3; want++ {
		if got := it.Number(); got != want {
			t.Errorf("expected call number %d, got %d", want, got)
		}
		it.Next(1)
	}

	// Past the last segment the iterator sits on the end position.
	if it.Get() != nil {
		t.Error("expected the end position")
	}
	if got := it.Number(); got != 4 {
		t.Errorf("expected end number 4, got %d", got)
	}

	end, err := bt.CallEnd()
	if err != nil {
		t.Fatal(err)
	}
	if it.Cmp(&end) != 0 {
		t.Error("expected the iterator to equal the end iterator")
	}
}

func TestCallIterator_Backward(t *testing.T) {
	th := callTrace(t)
	bt := &th.Btrace

	it, err := bt.CallEnd()
	if err != nil {
		t.Fatal(err)
	}

	if steps := it.Prev(1); steps != 1 {
		t.Fatalf("expected 1 step back from the end, got %d", steps)
	}
	if got := it.Number(); got != 3 {
		t.Errorf("expected call number 3, got %d", got)
	}

	if steps := it.Prev(2); steps != 2 {
		t.Fatalf("expected 2 steps, got %d", steps)
	}
	if got := it.Number(); got != 1 {
		t.Errorf("expected call number 1, got %d", got)
	}

	// No progress past the beginning.
	if steps := it.Prev(1); steps != 0 {
		t.Errorf("expected no steps past the beginning, got %d", steps)
	}
}

func TestCallIterator_CurrentSegmentInvisible(t *testing.T) {
	// A trace seeded with only the current PC: its single segment holds
	// one instruction and does not count as history.
	e := newTestEngine(testProgram())
	th := buildTrace(e, []Block{{0x100, 0x100}})
	bt := &th.Btrace

	end, err := bt.CallEnd()
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Number(); got != 1 {
		t.Errorf("expected the end number to stay at 1, got %d", got)
	}

	begin, err := bt.CallBegin()
	if err != nil {
		t.Fatal(err)
	}

	// Stepping over the invisible segment is free.
	if steps := begin.Next(1); steps != 0 {
		t.Errorf("expected 0 steps, got %d", steps)
	}
	if begin.Get() != nil {
		t.Error("expected to end up at the end position")
	}

	// And there is nothing to step back onto.
	endIt, err := bt.CallEnd()
	if err != nil {
		t.Fatal(err)
	}
	if steps := endIt.Prev(1); steps != 0 {
		t.Errorf("expected 0 steps back, got %d", steps)
	}
}

func TestCallIterator_FindByNumber(t *testing.T) {
	th := callTrace(t)
	bt := &th.Btrace

	for n := 1; n <= 3; n++ {
		it, ok := bt.FindCallByNumber(n)
		if !ok {
			t.Fatalf("expected to find call %d", n)
		}
		if got := it.Number(); got != n {
			t.Errorf("expected number %d, got %d", n, got)
		}
	}

	if _, ok := bt.FindCallByNumber(4); ok {
		t.Error("expected number 4 not to resolve")
	}
}
