package hint

import (
	"testing"
	"time"
)

// fakeClock advances only when something sleeps.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(d time.Duration) {
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d)
}

func newTestLimiter(interval time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	l := NewLimiter(interval)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestFirstCallDoesNotWait(t *testing.T) {
	l, clock := newTestLimiter(1500 * time.Millisecond)

	l.Wait()
	if len(clock.slept) != 0 {
		t.Errorf("first call slept %v, want no sleep", clock.slept)
	}
}

func TestBackToBackCallsAreSpaced(t *testing.T) {
	l, clock := newTestLimiter(1500 * time.Millisecond)

	l.Wait()
	l.Wait()

	if len(clock.slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(clock.slept))
	}
	if clock.slept[0] != 1500*time.Millisecond {
		t.Errorf("slept %v, want 1.5s", clock.slept[0])
	}
}

func TestPartialElapsedWaitsTheRemainder(t *testing.T) {
	l, clock := newTestLimiter(1500 * time.Millisecond)

	l.Wait()
	clock.now = clock.now.Add(600 * time.Millisecond)
	l.Wait()

	if len(clock.slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(clock.slept))
	}
	if clock.slept[0] != 900*time.Millisecond {
		t.Errorf("slept %v, want 900ms", clock.slept[0])
	}
}

func TestFullIntervalElapsedSkipsWait(t *testing.T) {
	l, clock := newTestLimiter(1500 * time.Millisecond)

	l.Wait()
	clock.now = clock.now.Add(2 * time.Second)
	l.Wait()

	if len(clock.slept) != 0 {
		t.Errorf("slept %v, want no sleep after full interval", clock.slept)
	}
}
