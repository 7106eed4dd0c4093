package session

import (
	"testing"

	"github.com/goodtune/screentime/internal/history"
	"github.com/stretchr/testify/assert"
)

func TestUserStateFor(t *testing.T) {
	tests := []struct {
		state string
		idle  bool
		want  history.UserState
	}{
		{"active", false, history.UserStateActive},
		{"active", true, history.UserStateInactive},
		{"online", false, history.UserStateInactive},
		{"closing", false, history.UserStateInactive},
		{"", false, history.UserStateInactive},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, UserStateFor(tt.state, tt.idle), "state=%q idle=%v", tt.state, tt.idle)
	}
}

func TestStaticNotifies(t *testing.T) {
	s := NewStatic(history.UserStateActive)

	var seen []history.UserState
	unsubscribe := s.Subscribe(func() { seen = append(seen, s.UserState()) })

	s.Set(history.UserStateInactive)
	s.Set(history.UserStateActive)
	unsubscribe()
	s.Set(history.UserStateInactive)

	assert.Equal(t, []history.UserState{history.UserStateInactive, history.UserStateActive}, seen)
}
