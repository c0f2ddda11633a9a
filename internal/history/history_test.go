package history

import "testing"

func TestBuffer_PushThenReplayNewestFirst(t *testing.T) {
	var b Buffer
	for i := 0; i < 5; i++ {
		b.Push(Sample{YawDeg: float64(i)})
	}
	if b.Len() != 5 {
		t.Fatalf("len=%d want 5", b.Len())
	}

	for want := 4; want >= 1; want-- {
		s, ok := b.ReplayNext()
		if !ok {
			t.Fatalf("ReplayNext returned !ok at yaw=%d", want)
		}
		if s.YawDeg != float64(want) {
			t.Fatalf("yaw=%v want %v", s.YawDeg, want)
		}
	}
	if b.Len() != 1 {
		t.Fatalf("len=%d want 1 after draining", b.Len())
	}
}

func TestBuffer_TerminalSampleIsHeld(t *testing.T) {
	var b Buffer
	b.Push(Sample{YawDeg: 10})
	b.Push(Sample{YawDeg: 20})

	if s, _ := b.ReplayNext(); s.YawDeg != 20 {
		t.Fatalf("yaw=%v want 20", s.YawDeg)
	}
	if !b.Terminal() {
		t.Fatalf("expected terminal after draining to one sample")
	}

	// Repeated replay must return the retained sample and never underflow.
	for i := 0; i < 10; i++ {
		s, ok := b.ReplayNext()
		if !ok {
			t.Fatalf("ReplayNext returned !ok at terminal")
		}
		if s.YawDeg != 10 {
			t.Fatalf("yaw=%v want 10", s.YawDeg)
		}
		if b.Len() != 1 {
			t.Fatalf("len=%d want 1", b.Len())
		}
	}
}

func TestBuffer_EmptyAndClear(t *testing.T) {
	var b Buffer
	if _, ok := b.ReplayNext(); ok {
		t.Fatalf("expected !ok on empty buffer")
	}
	if _, ok := b.Last(); ok {
		t.Fatalf("expected !ok on empty buffer")
	}

	b.Push(Sample{RollDeg: 1})
	b.Push(Sample{RollDeg: 2})
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("len=%d want 0 after clear", b.Len())
	}
}
