package timelimits

import (
	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/metrics"
)

// onTimeChanged keeps the history consistent with a real-time clock that
// was set forwards or backwards. Every recorded wall time is moved by the
// change in offset from the monotonic clock, so elapsed durations survive.
func (m *Manager) onTimeChanged() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Error().Msg("Clock change notification received while disabled")
		return
	}

	newOffset := clock.Offset(m.clock)
	delta := newOffset - m.clockOffsetSecs
	if delta == 0 {
		m.mu.Unlock()
		return
	}

	m.logger.Info().
		Int64("delta_secs", delta).
		Int("transitions", len(m.transitions)).
		Msg("Real-time clock changed, adjusting usage history")
	metrics.ClockChangesTotal.Inc()

	m.adjustTimesLocked(delta)
	m.clockOffsetSecs = newOffset
	m.persistLocked()
	b := m.batchLocked(m.updateStateLocked())
	m.mu.Unlock()

	m.emit(b)
}

func (m *Manager) adjustTimesLocked(delta int64) {
	m.transitions = history.Shift(m.transitions, delta)
	m.lastStateChangeTimeSecs += delta
	if m.dailyLimitReachedAtSecs != 0 {
		m.dailyLimitReachedAtSecs += delta
	}
}
