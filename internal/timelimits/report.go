package timelimits

import (
	"time"

	"github.com/goodtune/screentime/internal/history"
)

// DayUsage is the active time recorded in one usage day.
type DayUsage struct {
	Start      time.Time
	ActiveSecs int64
}

// DailyUsage returns the active time for the last days usage days, oldest
// first. The current day is counted up to nowSecs.
func DailyUsage(transitions []history.Transition, nowSecs int64, loc *time.Location, days int) []DayUsage {
	if days <= 0 {
		return nil
	}

	usage := make([]DayUsage, days)
	end := nowSecs
	for i := days - 1; i >= 0; i-- {
		start, _ := DayBounds(end-1, loc)
		if i == days-1 {
			start, _ = DayBounds(nowSecs, loc)
		}
		usage[i] = DayUsage{
			Start:      time.Unix(start, 0).In(loc),
			ActiveSecs: ActiveTimeTodaySecs(until(transitions, end), end, start),
		}
		end = start
	}
	return usage
}

// until returns the transitions at or before wallTimeSecs.
func until(transitions []history.Transition, wallTimeSecs int64) []history.Transition {
	for i, t := range transitions {
		if t.WallTimeSecs > wallTimeSecs {
			return transitions[:i]
		}
	}
	return transitions
}
