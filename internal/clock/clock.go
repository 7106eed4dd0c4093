// Package clock supplies wall-clock and monotonic time in whole seconds,
// one-shot timers and notifications when the wall clock is set.
//
// Production code uses RealClock. Tests inject MockClock, which only moves
// when told to and fires timers synchronously.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the usage state machine.
type Clock interface {
	// RealTimeSecs returns the wall clock as UNIX seconds.
	RealTimeSecs() int64

	// MonotonicTimeSecs returns a clock that never jumps. Only differences
	// between readings are meaningful.
	MonotonicTimeSecs() int64

	// AfterFunc calls f once after the given number of seconds.
	AfterFunc(seconds int64, f func()) Timer

	// NotifyTimeChange calls f whenever the wall clock is set
	// discontinuously. The returned function removes the subscription.
	NotifyTimeChange(f func()) (cancel func())
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Offset returns the difference between the real and monotonic clocks.
// It stays constant until the wall clock is set.
func Offset(c Clock) int64 {
	return c.RealTimeSecs() - c.MonotonicTimeSecs()
}

// RealClock provides actual system time.
type RealClock struct {
	mu          sync.Mutex
	subscribers map[int]func()
	nextID      int
	stop        chan struct{}
	watchErr    error
}

// NewRealClock creates a clock backed by the operating system.
func NewRealClock() *RealClock {
	return &RealClock{subscribers: make(map[int]func())}
}

// RealTimeSecs returns the current UNIX time.
func (c *RealClock) RealTimeSecs() int64 {
	return time.Now().Unix()
}

// MonotonicTimeSecs returns seconds on a clock unaffected by clock setting.
func (c *RealClock) MonotonicTimeSecs() int64 {
	return monotonicSecs()
}

// AfterFunc schedules f on the Go runtime timer, which is not affected by
// wall clock changes.
func (c *RealClock) AfterFunc(seconds int64, f func()) Timer {
	if seconds < 0 {
		seconds = 0
	}
	return time.AfterFunc(time.Duration(seconds)*time.Second, f)
}

// NotifyTimeChange subscribes f to wall clock discontinuities. The watcher
// starts with the first subscriber.
func (c *RealClock) NotifyTimeChange(f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop == nil {
		c.stop = make(chan struct{})
		c.watchErr = watchTimeChanges(c.stop, c.fire)
	}

	id := c.nextID
	c.nextID++
	c.subscribers[id] = f

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// WatchErr reports why time-change notifications are unavailable, if they
// are.
func (c *RealClock) WatchErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchErr
}

// Close stops the time-change watcher.
func (c *RealClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	return nil
}

func (c *RealClock) fire() {
	c.mu.Lock()
	subscribers := make([]func(), 0, len(c.subscribers))
	for _, f := range c.subscribers {
		subscribers = append(subscribers, f)
	}
	c.mu.Unlock()

	for _, f := range subscribers {
		f()
	}
}
