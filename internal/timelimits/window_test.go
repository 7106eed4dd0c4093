package timelimits

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/goodtune/screentime/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

// at returns hh:mm on the test day, in UTC.
func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func secs(hour, minute int) int64 {
	return at(hour, minute).Unix()
}

func activeBetween(start, end int64) []history.Transition {
	return []history.Transition{
		{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: start},
		{OldState: history.UserStateActive, NewState: history.UserStateInactive, WallTimeSecs: end},
	}
}

func TestDayBounds(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		name      string
		now       time.Time
		loc       *time.Location
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"midday", at(12, 0), time.UTC, at(3, 0), at(27, 0)},
		{"exactly 03:00", at(3, 0), time.UTC, at(3, 0), at(27, 0)},
		{"before 03:00 belongs to yesterday", at(2, 59), time.UTC, at(-21, 0), at(3, 0)},
		{"just before midnight", at(23, 59), time.UTC, at(3, 0), at(27, 0)},
		{"other zone", time.Date(2026, time.March, 2, 12, 0, 0, 0, plus2), plus2,
			time.Date(2026, time.March, 2, 3, 0, 0, 0, plus2), time.Date(2026, time.March, 3, 3, 0, 0, 0, plus2)},
		{"other zone before 03:00", time.Date(2026, time.March, 2, 1, 0, 0, 0, plus2), plus2,
			time.Date(2026, time.March, 1, 3, 0, 0, 0, plus2), time.Date(2026, time.March, 2, 3, 0, 0, 0, plus2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := DayBounds(tt.now.Unix(), tt.loc)
			assert.Equal(t, tt.wantStart.Unix(), start)
			assert.Equal(t, tt.wantEnd.Unix(), end)
		})
	}
}

func TestDayBoundsDaylightSaving(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	utc := func(month time.Month, day, hour, minute int) time.Time {
		return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantLen   time.Duration
	}{
		// Clocks go from 02:00 CET to 03:00 CEST on 31 March.
		{"spring forward", utc(time.March, 30, 12, 0), utc(time.March, 30, 2, 0), 23 * time.Hour},
		{"spring forward, 01:30 local", utc(time.March, 31, 0, 30), utc(time.March, 30, 2, 0), 23 * time.Hour},
		{"after spring forward", utc(time.March, 31, 1, 0), utc(time.March, 31, 1, 0), 24 * time.Hour},
		// Clocks go from 03:00 CEST back to 02:00 CET on 27 October.
		{"fall back", utc(time.October, 26, 12, 0), utc(time.October, 26, 1, 0), 25 * time.Hour},
		{"fall back, first 02:30 local", utc(time.October, 27, 0, 30), utc(time.October, 26, 1, 0), 25 * time.Hour},
		{"fall back, second 02:30 local", utc(time.October, 27, 1, 30), utc(time.October, 26, 1, 0), 25 * time.Hour},
		{"after fall back", utc(time.October, 27, 2, 0), utc(time.October, 27, 2, 0), 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := DayBounds(tt.now.Unix(), berlin)
			assert.Equal(t, tt.wantStart.Unix(), start)
			assert.Equal(t, int64(tt.wantLen/time.Second), end-start)
			assert.Equal(t, DayStartHour, time.Unix(start, 0).In(berlin).Hour())
			assert.Equal(t, DayStartHour, time.Unix(end, 0).In(berlin).Hour())
		})
	}
}

func TestActiveTimeTodaySecs(t *testing.T) {
	startOfToday := secs(3, 0)

	tests := []struct {
		name        string
		transitions []history.Transition
		now         int64
		want        int64
	}{
		{
			name: "empty history",
			now:  secs(10, 0),
			want: 0,
		},
		{
			name:        "closed segments",
			transitions: append(activeBetween(secs(7, 30), secs(8, 0)), activeBetween(secs(8, 30), secs(9, 30))...),
			now:         secs(10, 0),
			want:        90 * 60,
		},
		{
			name: "open segment runs until now",
			transitions: []history.Transition{
				{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(9, 0)},
			},
			now:  secs(10, 0),
			want: 60 * 60,
		},
		{
			name: "active since yesterday is clipped to the day start",
			transitions: []history.Transition{
				{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(1, 0)},
			},
			now:  secs(4, 0),
			want: 60 * 60,
		},
		{
			name:        "segment spanning the day start",
			transitions: activeBetween(secs(2, 0), secs(5, 0)),
			now:         secs(10, 0),
			want:        2 * 60 * 60,
		},
		{
			name:        "yesterday only",
			transitions: activeBetween(secs(-10, 0), secs(-9, 0)),
			now:         secs(10, 0),
			want:        0,
		},
		{
			name: "reversed timestamps never go negative",
			transitions: []history.Transition{
				{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(10, 0)},
				{OldState: history.UserStateActive, NewState: history.UserStateInactive, WallTimeSecs: secs(9, 0)},
			},
			now:  secs(11, 0),
			want: 0,
		},
		{
			name: "now before last transition",
			transitions: []history.Transition{
				{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(12, 0)},
			},
			now:  secs(11, 0),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveTimeTodaySecs(tt.transitions, tt.now, startOfToday)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, int64(0))
		})
	}
}

func TestLimitReachedAtSecs(t *testing.T) {
	startOfToday := secs(3, 0)
	limit := int64(4 * 60 * 60)

	t.Run("crossed in an earlier segment", func(t *testing.T) {
		transitions := activeBetween(secs(4, 30), secs(8, 50))
		assert.Equal(t, secs(8, 30), LimitReachedAtSecs(transitions, secs(10, 0), startOfToday, limit))
	})

	t.Run("crossed across segments", func(t *testing.T) {
		transitions := append(activeBetween(secs(5, 0), secs(7, 0)), activeBetween(secs(9, 0), secs(13, 0))...)
		assert.Equal(t, secs(11, 0), LimitReachedAtSecs(transitions, secs(13, 0), startOfToday, limit))
	})

	t.Run("crossed in the open segment", func(t *testing.T) {
		transitions := []history.Transition{
			{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(10, 0)},
		}
		assert.Equal(t, secs(14, 0), LimitReachedAtSecs(transitions, secs(14, 0), startOfToday, limit))
	})
}

func TestDailyUsage(t *testing.T) {
	transitions := []history.Transition{
		// Yesterday, 20:00 to 01:00 (which still belongs to yesterday).
		{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(-4, 0)},
		{OldState: history.UserStateActive, NewState: history.UserStateInactive, WallTimeSecs: secs(1, 0)},
		// Across today's 03:00 boundary.
		{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(2, 30)},
		{OldState: history.UserStateActive, NewState: history.UserStateInactive, WallTimeSecs: secs(4, 0)},
		// Still active now.
		{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: secs(9, 0)},
	}

	usage := DailyUsage(transitions, secs(10, 0), time.UTC, 3)

	assert.Len(t, usage, 3)
	assert.Equal(t, at(-45, 0).Unix(), usage[0].Start.Unix())
	assert.Zero(t, usage[0].ActiveSecs)
	assert.Equal(t, at(-21, 0).Unix(), usage[1].Start.Unix())
	assert.Equal(t, int64(5*60*60+30*60), usage[1].ActiveSecs)
	assert.Equal(t, at(3, 0).Unix(), usage[2].Start.Unix())
	assert.Equal(t, int64(2*60*60), usage[2].ActiveSecs)
}
