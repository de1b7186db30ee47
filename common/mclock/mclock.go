// Package mclock provides a monotonic clock abstraction so Sumeragi's
// timeouts (block_time, commit_time, tx_receipt_time, §4.5) and the
// gossiper/block-sync periods (§4.4, §4.6) can be driven by a fake clock in
// tests instead of real wall-clock sleeps.
package mclock

import (
	"sync"
	"time"
)

// AbsTime is a monotonic timestamp, not tied to wall-clock time.
type AbsTime time.Duration

// Clock abstracts over time so consensus/gossip timers are deterministically
// testable; System is the only implementation used in production.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) Timer
	After(time.Duration) <-chan AbsTime
}

// Timer is a cancellable, resettable single-shot timer.
type Timer interface {
	C() <-chan AbsTime
	Stop() bool
	Reset(time.Duration) bool
}

// System is the real clock, backed by the OS monotonic clock.
type System struct{}

// processStart anchors System's readings; time.Since and Time.Sub use the
// monotonic reading carried by every time.Now value.
var processStart = time.Now()

func (System) Now() AbsTime { return AbsTime(time.Since(processStart)) }

func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	time.AfterFunc(d, func() { ch <- System{}.Now() })
	return ch
}

func (System) NewTimer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return &systemTimer{t: t}
}

type systemTimer struct {
	t *time.Timer
	c chan AbsTime
}

func (s *systemTimer) C() <-chan AbsTime {
	if s.c == nil {
		s.c = make(chan AbsTime, 1)
		go func() {
			if tt, ok := <-s.t.C; ok {
				s.c <- AbsTime(tt.Sub(processStart))
			}
		}()
	}
	return s.c
}

func (s *systemTimer) Stop() bool           { return s.t.Stop() }
func (s *systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }

// Simulated is a virtual clock for deterministic tests: time advances only
// when Run is called, so a view-change timeout test can assert "no commit
// happened before commit_time elapsed" without a real sleep.
type Simulated struct {
	mu      sync.Mutex
	now     AbsTime
	timers  []*simTimer
}

func (s *Simulated) Now() AbsTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Simulated) Sleep(d time.Duration) { s.Run(d) }

// Run advances the simulated clock by d, firing any timer whose deadline
// falls within the new window.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	target := s.now + AbsTime(d)
	s.now = target
	due := make([]*simTimer, 0)
	remaining := s.timers[:0]
	for _, t := range s.timers {
		if t.deadline <= target && !t.fired {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.timers = remaining
	s.mu.Unlock()

	for _, t := range due {
		t.fired = true
		t.ch <- target
	}
}

func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	return s.NewTimer(d).C()
}

func (s *Simulated) NewTimer(d time.Duration) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &simTimer{clock: s, deadline: s.now + AbsTime(d), ch: make(chan AbsTime, 1)}
	s.timers = append(s.timers, t)
	return t
}

type simTimer struct {
	clock    *Simulated
	deadline AbsTime
	ch       chan AbsTime
	fired    bool
}

func (t *simTimer) C() <-chan AbsTime { return t.ch }

func (t *simTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, o := range t.clock.timers {
		if o == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return !t.fired
		}
	}
	return false
}

func (t *simTimer) Reset(d time.Duration) bool {
	wasActive := t.Stop()
	t.clock.mu.Lock()
	t.deadline = t.clock.now + AbsTime(d)
	t.fired = false
	t.ch = make(chan AbsTime, 1)
	t.clock.timers = append(t.clock.timers, t)
	t.clock.mu.Unlock()
	return wasActive
}
