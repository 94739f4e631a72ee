package mocks

import (
	"sync"
	"time"

	"github.com/mcoot/worldrelay/internal/dependencies/clock"
)

// MockClock is a mock implementation of Clock for testing.
// Tickers and timers only fire when the clock is advanced.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time

	tickers []*mockTicker
	timers  []*mockTimer
}

// Ensure MockClock implements Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock set to the given time
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

// Now returns the mocked current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

// NewTicker creates a ticker driven by Advance
func (c *MockClock) NewTicker(d time.Duration) clock.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{
		clock:  c,
		period: d,
		next:   c.CurrentTime.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// AfterFunc schedules f to run when Advance passes the deadline
func (c *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{clock: c, deadline: c.CurrentTime.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by the given duration, firing any
// tickers and timers that come due
func (c *MockClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set sets the clock to the given time, firing any tickers and timers that come due
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.CurrentTime = t

	for _, tk := range c.tickers {
		if tk.stopped || tk.next.After(t) {
			continue
		}
		for !tk.next.After(t) {
			tk.next = tk.next.Add(tk.period)
		}
		select {
		case tk.ch <- t:
		default:
		}
	}

	var due []func()
	pending := c.timers[:0]
	for _, tm := range c.timers {
		switch {
		case tm.stopped:
		case !tm.deadline.After(t):
			tm.stopped = true
			due = append(due, tm.f)
		default:
			pending = append(pending, tm)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

// ActiveTickers returns the number of tickers that have not been stopped
func (c *MockClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tk := range c.tickers {
		if !tk.stopped {
			n++
		}
	}
	return n
}

type mockTicker struct {
	clock   *MockClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	f        func()
	stopped  bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
