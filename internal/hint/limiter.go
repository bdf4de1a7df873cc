package hint

import (
	"sync"
	"time"
)

// Limiter enforces a minimum gap between outbound AI calls. All hint traffic
// funnels through one limiter so a classroom of students cannot burst the
// upstream quota. Clock and sleep are injectable for tests.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCalled  time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewLimiter creates a limiter with the given minimum call interval.
func NewLimiter(minInterval time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Wait blocks until the minimum interval since the previous call has passed,
// then claims the slot. Concurrent callers are serialized, each pushing the
// next caller's earliest start further out.
func (l *Limiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elapsed := now.Sub(l.lastCalled); elapsed < l.minInterval {
		l.sleep(l.minInterval - elapsed)
		now = l.now()
	}
	l.lastCalled = now
}
