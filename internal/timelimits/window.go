package timelimits

import (
	"time"

	"github.com/goodtune/screentime/internal/history"
)

// DayStartHour is the local hour at which a new usage day begins. 03:00
// avoids the ambiguity of midnight on daylight saving transition dates.
const DayStartHour = 3

// DayBounds returns the start of the usage day containing nowSecs and the
// start of the next one.
func DayBounds(nowSecs int64, loc *time.Location) (startOfToday, startOfTomorrow int64) {
	now := time.Unix(nowSecs, 0).In(loc)

	// Get today at the reset hour
	today := time.Date(now.Year(), now.Month(), now.Day(), DayStartHour, 0, 0, 0, loc)

	// If we haven't reached the reset hour today, yesterday is still the current "day"
	if now.Before(today) {
		today = time.Date(now.Year(), now.Month(), now.Day()-1, DayStartHour, 0, 0, 0, loc)
	}
	tomorrow := time.Date(today.Year(), today.Month(), today.Day()+1, DayStartHour, 0, 0, 0, loc)

	return today.Unix(), tomorrow.Unix()
}

type segment struct {
	start, end int64
}

func (s segment) length() int64 {
	return max(s.end-s.start, 0)
}

// activeSegments returns the periods of activity between startOfToday and
// nowSecs, in order. A period already open at startOfToday is clipped to
// it, and a period still open at the end is closed at nowSecs.
func activeSegments(transitions []history.Transition, nowSecs, startOfToday int64) []segment {
	first := -1
	for i, t := range transitions {
		if t.WallTimeSecs >= startOfToday {
			first = i
			break
		}
	}

	var segments []segment
	openedAt := startOfToday
	if first >= 0 {
		for _, t := range transitions[first:] {
			if t.NewState == history.UserStateActive {
				openedAt = t.WallTimeSecs
			} else if t.OldState == history.UserStateActive {
				segments = append(segments, segment{start: openedAt, end: t.WallTimeSecs})
			}
		}
	}

	if last, ok := history.LastState(transitions); ok && last == history.UserStateActive {
		segments = append(segments, segment{start: openedAt, end: nowSecs})
	}
	return segments
}

// ActiveTimeTodaySecs returns how long the user has been active since
// startOfToday. It is never negative, whatever the clock has done.
func ActiveTimeTodaySecs(transitions []history.Transition, nowSecs, startOfToday int64) int64 {
	var total int64
	for _, s := range activeSegments(transitions, nowSecs, startOfToday) {
		total += s.length()
	}
	return total
}

// LimitReachedAtSecs returns the instant today's accumulated activity first
// reached limitSecs.
func LimitReachedAtSecs(transitions []history.Transition, nowSecs, startOfToday, limitSecs int64) int64 {
	if limitSecs <= 0 {
		return startOfToday
	}

	var total int64
	for _, s := range activeSegments(transitions, nowSecs, startOfToday) {
		if total+s.length() >= limitSecs {
			return s.start + (limitSecs - total)
		}
		total += s.length()
	}

	// Not reached: extrapolate as if the user had been active until now.
	return nowSecs - (total - limitSecs)
}
