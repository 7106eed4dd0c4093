package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestMockClock_Advance(t *testing.T) {
	c := NewMockClock(start)
	mono := c.MonotonicTimeSecs()

	c.Advance(90 * time.Minute)

	assert.Equal(t, start.Add(90*time.Minute).Unix(), c.RealTimeSecs())
	assert.Equal(t, mono+90*60, c.MonotonicTimeSecs())
}

func TestMockClock_TimersFireInOrderAtDeadline(t *testing.T) {
	c := NewMockClock(start)

	var fired []int64
	c.AfterFunc(20, func() { fired = append(fired, c.RealTimeSecs()) })
	c.AfterFunc(10, func() { fired = append(fired, c.RealTimeSecs()) })
	stopped := c.AfterFunc(15, func() { t.Fatal("stopped timer fired") })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	c.Advance(time.Minute)

	require.Equal(t, []int64{start.Unix() + 10, start.Unix() + 20}, fired)
	assert.Equal(t, 0, c.PendingTimers())
}

func TestMockClock_TimerScheduledFromCallback(t *testing.T) {
	c := NewMockClock(start)

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(5, tick)
		}
	}
	c.AfterFunc(5, tick)

	c.Advance(time.Minute)
	assert.Equal(t, 3, count)
}

func TestMockClock_JumpRealTimeChangesOffset(t *testing.T) {
	c := NewMockClock(start)
	before := Offset(c)

	notified := 0
	cancel := c.NotifyTimeChange(func() { notified++ })

	c.JumpRealTime(4 * time.Hour)
	assert.Equal(t, 1, notified)
	assert.Equal(t, before+4*3600, Offset(c))

	cancel()
	c.JumpRealTime(time.Hour)
	assert.Equal(t, 1, notified)
}

func TestMockClock_NextWallDeadline(t *testing.T) {
	c := NewMockClock(start)

	_, ok := c.NextWallDeadline()
	require.False(t, ok)

	c.AfterFunc(3600, func() {})
	deadline, ok := c.NextWallDeadline()
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Hour).Unix(), deadline)
}

func TestRealClock_OffsetIsStable(t *testing.T) {
	c := NewRealClock()
	defer func() { _ = c.Close() }()

	first := Offset(c)
	second := Offset(c)
	assert.InDelta(t, first, second, 1)
}
