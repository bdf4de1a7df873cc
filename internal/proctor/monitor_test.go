package proctor

import "testing"

func TestRecordCountsEachViolationSignal(t *testing.T) {
	m := NewMonitor(10)

	signals := []Signal{SignalVisibilityHidden, SignalFullscreenExited, SignalFocusLost}
	for i, sig := range signals {
		if got := m.Record(sig); got != OutcomeWarn {
			t.Errorf("%s: outcome = %v, want OutcomeWarn", sig, got)
		}
		if m.Count() != i+1 {
			t.Errorf("%s: count = %d, want %d", sig, m.Count(), i+1)
		}
	}
}

func TestDeterrenceSignalsAreRecordedNotCounted(t *testing.T) {
	m := NewMonitor(1)

	for _, sig := range []Signal{SignalCopyAttempt, SignalPasteAttempt, SignalContextMenu} {
		if got := m.Record(sig); got != OutcomeDeterrence {
			t.Errorf("%s: outcome = %v, want OutcomeDeterrence", sig, got)
		}
	}
	if m.Count() != 0 {
		t.Errorf("count = %d, want 0", m.Count())
	}
}

func TestUnknownSignalIsIgnored(t *testing.T) {
	m := NewMonitor(1)

	if got := m.Record(Signal("shook_mouse")); got != OutcomeIgnored {
		t.Errorf("outcome = %v, want OutcomeIgnored", got)
	}
	if m.Count() != 0 {
		t.Errorf("count = %d, want 0", m.Count())
	}
}

// Ceiling of 1 means the very first violation escalates: no warning dialog,
// straight to forced finalization.
func TestCeilingOfOneEscalatesImmediately(t *testing.T) {
	m := NewMonitor(1)

	if got := m.Record(SignalVisibilityHidden); got != OutcomeEscalate {
		t.Fatalf("outcome = %v, want OutcomeEscalate", got)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}
}

func TestEscalatesExactlyAtCeiling(t *testing.T) {
	m := NewMonitor(3)

	if got := m.Record(SignalFocusLost); got != OutcomeWarn {
		t.Errorf("violation 1: outcome = %v, want OutcomeWarn", got)
	}
	if got := m.Record(SignalFullscreenExited); got != OutcomeWarn {
		t.Errorf("violation 2: outcome = %v, want OutcomeWarn", got)
	}
	if got := m.Record(SignalVisibilityHidden); got != OutcomeEscalate {
		t.Errorf("violation 3: outcome = %v, want OutcomeEscalate", got)
	}
}

func TestZeroCeilingNeverEscalates(t *testing.T) {
	m := NewMonitor(0)

	for i := 0; i < 100; i++ {
		if got := m.Record(SignalFocusLost); got != OutcomeWarn {
			t.Fatalf("violation %d: outcome = %v, want OutcomeWarn", i+1, got)
		}
	}
	if m.Count() != 100 {
		t.Errorf("count = %d, want 100", m.Count())
	}
}

func TestRestoreSeedsCountFromSnapshot(t *testing.T) {
	m := NewMonitor(3)
	m.Restore(2)

	if m.Count() != 2 {
		t.Fatalf("count = %d, want 2", m.Count())
	}
	// One more violation after restore reaches the ceiling.
	if got := m.Record(SignalVisibilityHidden); got != OutcomeEscalate {
		t.Errorf("outcome = %v, want OutcomeEscalate", got)
	}
}
