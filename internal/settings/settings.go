// Package settings provides the screen time settings consumed by the usage
// state machine, with a notification when they change.
package settings

import (
	"sort"
	"sync"

	"github.com/goodtune/screentime/internal/config"
)

// Source supplies the screen time settings.
type Source interface {
	HistoryEnabled() bool
	DailyLimitEnabled() bool
	DailyLimitSecs() int64

	// Subscribe calls f after any setting changes. The returned function
	// removes the subscription.
	Subscribe(f func()) (unsubscribe func())
}

// Values is a snapshot of all settings.
type Values struct {
	HistoryEnabled    bool
	DailyLimitEnabled bool
	DailyLimitSecs    int64
}

// FromConfig converts the limits section of the configuration file.
func FromConfig(cfg config.LimitsConfig) Values {
	return Values{
		HistoryEnabled:    cfg.HistoryEnabled,
		DailyLimitEnabled: cfg.DailyLimitEnabled,
		DailyLimitSecs:    cfg.DailyLimitSecs(),
	}
}

// Static is an in-memory Source. Set replaces the values and notifies
// subscribers when anything differs.
type Static struct {
	mu          sync.RWMutex
	values      Values
	subscribers map[int]func()
	nextID      int
}

// NewStatic creates a Static source holding values.
func NewStatic(values Values) *Static {
	return &Static{values: values, subscribers: make(map[int]func())}
}

// HistoryEnabled reports whether usage history is recorded.
func (s *Static) HistoryEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.HistoryEnabled
}

// DailyLimitEnabled reports whether the daily limit is enforced.
func (s *Static) DailyLimitEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.DailyLimitEnabled
}

// DailyLimitSecs returns the daily limit.
func (s *Static) DailyLimitSecs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.DailyLimitSecs
}

// Subscribe registers f for change notifications.
func (s *Static) Subscribe(f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = f
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Set replaces the settings. Subscribers run on the caller's goroutine
// after the lock is released.
func (s *Static) Set(values Values) {
	s.mu.Lock()
	if s.values == values {
		s.mu.Unlock()
		return
	}
	s.values = values

	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subscribers := make([]func(), 0, len(ids))
	for _, id := range ids {
		subscribers = append(subscribers, s.subscribers[id])
	}
	s.mu.Unlock()

	for _, f := range subscribers {
		f()
	}
}

// Watch keeps a Static source in sync with the configuration file.
func Watch(loader *config.Loader, source *Static, onError func(error)) {
	loader.Watch(func(cfg *config.Config) {
		source.Set(FromConfig(cfg.Limits))
	}, onError)
}
