// Package history records when the login session flips between active and
// inactive use, and persists that log as a JSON array.
package history

import "fmt"

// UserState is whether the session is actively used. The numeric values
// are persisted and must never change.
type UserState int

const (
	UserStateInactive UserState = 0
	UserStateActive   UserState = 1
)

func (s UserState) String() string {
	switch s {
	case UserStateInactive:
		return "inactive"
	case UserStateActive:
		return "active"
	default:
		return fmt.Sprintf("UserState(%d)", int(s))
	}
}

// RetentionSecs is how long transitions are kept: 14 weeks.
const RetentionSecs int64 = 14 * 7 * 24 * 60 * 60

// Transition is one observed flip in user activity.
type Transition struct {
	OldState     UserState `json:"oldState"`
	NewState     UserState `json:"newState"`
	WallTimeSecs int64     `json:"wallTimeSecs"`
}

// LastState returns the state after the final transition, and false if
// there are none.
func LastState(transitions []Transition) (UserState, bool) {
	if len(transitions) == 0 {
		return UserStateInactive, false
	}
	return transitions[len(transitions)-1].NewState, true
}

// Shift returns a copy of transitions with every timestamp moved by delta.
func Shift(transitions []Transition, delta int64) []Transition {
	shifted := make([]Transition, len(transitions))
	for i, t := range transitions {
		t.WallTimeSecs += delta
		shifted[i] = t
	}
	return shifted
}
