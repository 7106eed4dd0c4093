package dispatcher

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/timelimits"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (f *fakeNotifier) Notify(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.sent...)
}

var start = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newTestDispatcher(warning time.Duration) (*Dispatcher, *clock.MockClock, *fakeNotifier) {
	clk := clock.NewMockClock(start)
	notifier := &fakeNotifier{}
	d := New(clk, notifier, Config{Notify: true, WarningBefore: warning}, zerolog.Nop())
	return d, clk, notifier
}

func TestDispatcher_WarnsBeforeLimit(t *testing.T) {
	d, clk, notifier := newTestDispatcher(10 * time.Minute)

	d.StateChanged(timelimits.StateActive)
	d.DailyLimitTimeChanged(start.Add(time.Hour).Unix())
	require.Equal(t, 1, clk.PendingTimers())

	clk.Advance(49 * time.Minute)
	assert.Empty(t, notifier.notifications())

	clk.Advance(time.Minute)
	sent := notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "Screen time almost up", sent[0].Summary)
	assert.Contains(t, sent[0].Body, "10 minutes")
	assert.False(t, sent[0].Critical)
}

func TestDispatcher_RescheduleReplacesWarning(t *testing.T) {
	d, clk, notifier := newTestDispatcher(10 * time.Minute)

	d.StateChanged(timelimits.StateActive)
	d.DailyLimitTimeChanged(start.Add(time.Hour).Unix())
	d.DailyLimitTimeChanged(start.Add(2 * time.Hour).Unix())
	assert.Equal(t, 1, clk.PendingTimers())

	clk.Advance(time.Hour)
	assert.Empty(t, notifier.notifications())

	clk.Advance(time.Hour)
	assert.Len(t, notifier.notifications(), 1)
}

func TestDispatcher_InactiveUserCancelsWarning(t *testing.T) {
	d, clk, notifier := newTestDispatcher(10 * time.Minute)

	d.StateChanged(timelimits.StateActive)
	d.DailyLimitTimeChanged(start.Add(time.Hour).Unix())
	d.DailyLimitTimeChanged(0)

	assert.Zero(t, clk.PendingTimers())
	clk.Advance(2 * time.Hour)
	assert.Empty(t, notifier.notifications())
}

func TestDispatcher_NoWarningInsideWindow(t *testing.T) {
	d, clk, _ := newTestDispatcher(10 * time.Minute)

	d.StateChanged(timelimits.StateActive)
	d.DailyLimitTimeChanged(start.Add(5 * time.Minute).Unix())

	assert.Zero(t, clk.PendingTimers())
}

func TestDispatcher_LimitReached(t *testing.T) {
	d, clk, notifier := newTestDispatcher(10 * time.Minute)

	d.StateChanged(timelimits.StateActive)
	d.DailyLimitTimeChanged(start.Add(time.Hour).Unix())
	d.StateChanged(timelimits.StateLimitReached)
	d.DailyLimitReached()

	assert.Zero(t, clk.PendingTimers(), "warning cancelled once the limit is reached")
	sent := notifier.notifications()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Critical)
	assert.Equal(t, "Screen time limit reached", sent[0].Summary)
}

func TestDispatcher_NotifierErrorsAreNotFatal(t *testing.T) {
	d, _, notifier := newTestDispatcher(0)
	notifier.err = errors.New("no notification daemon")

	assert.NotPanics(t, d.DailyLimitReached)
}

func TestDispatcher_NotificationsDisabled(t *testing.T) {
	clk := clock.NewMockClock(start)
	notifier := &fakeNotifier{}
	d := New(clk, notifier, Config{Notify: false, WarningBefore: time.Minute}, zerolog.Nop())

	d.DailyLimitReached()
	assert.Empty(t, notifier.notifications())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Minute, "1 minute"},
		{10 * time.Minute, "10 minutes"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
