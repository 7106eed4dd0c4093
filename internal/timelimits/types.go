package timelimits

import "fmt"

// State is the externally visible state of the Manager.
type State int

const (
	// StateDisabled means neither history nor the daily limit is enabled.
	StateDisabled State = iota
	// StateActive means usage is being tracked and the limit, if any, has
	// not been reached today.
	StateActive
	// StateLimitReached means today's usage has reached the daily limit.
	StateLimitReached
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateActive:
		return "active"
	case StateLimitReached:
		return "limit-reached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer receives change notifications from a Manager. Methods are called
// synchronously at the end of each recomputation, after the Manager has
// released its lock, so they may call back into the Manager's getters.
type Observer interface {
	StateChanged(state State)
	// DailyLimitTimeChanged reports the new value of DailyLimitTime.
	DailyLimitTimeChanged(unixSecs int64)
	DailyLimitReached()
}

type eventKind int

const (
	eventStateChanged eventKind = iota
	eventDailyLimitTimeChanged
	eventDailyLimitReached
)

type event struct {
	kind      eventKind
	state     State
	limitTime int64
}

// batch is the notifications produced by one state update. seq orders
// delivery across batches.
type batch struct {
	seq    uint64
	events []event
}
