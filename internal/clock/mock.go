package clock

import (
	"sort"
	"sync"
	"time"
)

// MockClock is a test clock with controllable time. Timers and time-change
// subscribers run synchronously on the goroutine that moves the clock.
type MockClock struct {
	mu          sync.Mutex
	real        int64
	mono        int64
	timers      []*mockTimer
	subscribers map[int]func()
	nextID      int
}

type mockTimer struct {
	clock    *MockClock
	deadline int64 // monotonic seconds
	seq      int
	f        func()
	done     bool
}

// NewMockClock creates a mock clock set to the given wall time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{
		real:        t.Unix(),
		mono:        1000,
		subscribers: make(map[int]func()),
	}
}

// RealTimeSecs returns the mock wall time.
func (c *MockClock) RealTimeSecs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.real
}

// MonotonicTimeSecs returns the mock monotonic time.
func (c *MockClock) MonotonicTimeSecs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

// AfterFunc registers f to run once the clock has advanced by seconds.
func (c *MockClock) AfterFunc(seconds int64, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	t := &mockTimer{clock: c, deadline: c.mono + seconds, seq: c.nextID, f: f}
	c.nextID++
	c.timers = append(c.timers, t)
	return t
}

// NotifyTimeChange registers f to run on JumpRealTime.
func (c *MockClock) NotifyTimeChange(f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subscribers[id] = f
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Advance moves both clocks forward by d, truncated to whole seconds,
// firing due timers in deadline order at their exact deadlines.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.mono + int64(d/time.Second)
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		c.real += next.deadline - c.mono
		c.mono = next.deadline
		next.done = true
		c.pruneLocked()

		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.real += target - c.mono
	c.mono = target
	c.mu.Unlock()
}

// AdvanceTo advances until the wall clock reads t.
func (c *MockClock) AdvanceTo(t time.Time) {
	c.Advance(time.Duration(t.Unix()-c.RealTimeSecs()) * time.Second)
}

// JumpRealTime sets the wall clock by d without moving the monotonic
// clock, then notifies time-change subscribers.
func (c *MockClock) JumpRealTime(d time.Duration) {
	c.mu.Lock()
	c.real += int64(d / time.Second)
	subscribers := make([]func(), 0, len(c.subscribers))
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subscribers = append(subscribers, c.subscribers[id])
	}
	c.mu.Unlock()

	for _, f := range subscribers {
		f()
	}
}

// PendingTimers returns the number of timers that have not fired or been
// stopped.
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextWallDeadline returns the wall time at which the earliest pending
// timer fires, assuming the wall clock is not set in between.
func (c *MockClock) NextWallDeadline() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.nextDueLocked(int64(^uint64(0) >> 1))
	if next == nil {
		return 0, false
	}
	return c.real + next.deadline - c.mono, true
}

func (c *MockClock) nextDueLocked(limit int64) *mockTimer {
	var next *mockTimer
	for _, t := range c.timers {
		if t.done || t.deadline > limit {
			continue
		}
		if next == nil || t.deadline < next.deadline || (t.deadline == next.deadline && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (c *MockClock) pruneLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	c.timers = live
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.pruneLocked()
	return true
}
