// Package session reports whether the login session is actively used.
package session

import (
	"sort"
	"sync"

	"github.com/goodtune/screentime/internal/history"
)

// Source supplies the current user state and notifies when it may have
// changed.
type Source interface {
	UserState() history.UserState

	// Subscribe calls f whenever the underlying session properties
	// change. f must compare UserState against its own last value.
	Subscribe(f func()) (unsubscribe func())
}

// UserStateFor maps logind session properties to a user state: the user is
// active only when the session is in the foreground and not idle.
func UserStateFor(state string, idleHint bool) history.UserState {
	if state == "active" && !idleHint {
		return history.UserStateActive
	}
	return history.UserStateInactive
}

type subscribers struct {
	mu     sync.Mutex
	funcs  map[int]func()
	nextID int
}

func (s *subscribers) add(f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.funcs == nil {
		s.funcs = make(map[int]func())
	}
	id := s.nextID
	s.nextID++
	s.funcs[id] = f
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.funcs, id)
	}
}

func (s *subscribers) notify() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.funcs))
	for id := range s.funcs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	funcs := make([]func(), 0, len(ids))
	for _, id := range ids {
		funcs = append(funcs, s.funcs[id])
	}
	s.mu.Unlock()

	for _, f := range funcs {
		f()
	}
}

// Static is a Source driven by the caller.
type Static struct {
	mu    sync.RWMutex
	state history.UserState
	subs  subscribers
}

// NewStatic returns a Static source in the given state.
func NewStatic(state history.UserState) *Static {
	return &Static{state: state}
}

// UserState returns the current state.
func (s *Static) UserState() history.UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers f for change notifications.
func (s *Static) Subscribe(f func()) func() {
	return s.subs.add(f)
}

// Set changes the state and notifies subscribers.
func (s *Static) Set(state history.UserState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.subs.notify()
}
