// Package timelimits tracks how long the login session has been actively
// used today and reports when the configured daily limit is reached.
package timelimits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/session"
	"github.com/goodtune/screentime/internal/settings"
	"github.com/rs/zerolog"
)

// DefaultSaveTimeout bounds saves triggered by settings changes.
const DefaultSaveTimeout = 10 * time.Second

// HistoryStore persists the transition history.
type HistoryStore interface {
	Load(ctx context.Context) ([]history.Transition, error)
	Save(ctx context.Context, transitions []history.Transition) error
}

// Config holds the Manager's collaborators.
type Config struct {
	Clock    clock.Clock
	Settings settings.Source
	Session  session.Source
	History  HistoryStore

	// Location determines where the 03:00 day boundary falls. Defaults to
	// time.Local.
	Location *time.Location
}

// Manager is the usage state machine. It records user activity
// transitions, decides whether the daily limit has been reached and
// schedules its own re-evaluation.
type Manager struct {
	clock    clock.Clock
	settings settings.Source
	session  session.Source
	history  HistoryStore
	location *time.Location
	logger   zerolog.Logger

	// lifecycle serializes Start, Stop and settings changes.
	lifecycle           sync.Mutex
	unsubscribeSettings func()
	stopped             bool

	mu        sync.Mutex
	observers []Observer
	running   bool

	state                   State
	userState               history.UserState
	transitions             []history.Transition
	lastStateChangeTimeSecs int64
	dailyLimitReachedAtSecs int64
	clockOffsetSecs         int64
	lastDailyLimitTime      int64

	timer    clock.Timer
	timerGen uint64

	unsubscribeTimeChange func()
	unsubscribeSession    func()

	// Observers see batches one at a time in the order they were computed.
	batchSeq     uint64 // guarded by mu
	deliverMu    sync.Mutex
	deliverCond  *sync.Cond
	deliveredSeq uint64

	persistCtx    context.Context
	persistCancel context.CancelFunc
	persistWG     sync.WaitGroup
	saveSeq       atomic.Uint64
	saveMu        sync.Mutex // guards savedSeq and serializes writes
	savedSeq      uint64
}

// NewManager creates a disabled Manager. Call Start to begin tracking.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	m := &Manager{
		clock:    cfg.Clock,
		settings: cfg.Settings,
		session:  cfg.Session,
		history:  cfg.History,
		location: cfg.Location,
		logger:   logger.With().Str("component", "timelimits").Logger(),
		state:    StateDisabled,
	}
	m.deliverCond = sync.NewCond(&m.deliverMu)
	return m
}

// AddObserver registers o for change notifications.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Start subscribes to settings changes and starts the state machine if
// history or the daily limit is enabled.
func (m *Manager) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.stopped = false
	if m.unsubscribeSettings == nil {
		m.unsubscribeSettings = m.settings.Subscribe(m.onSettingsChanged)
	}
	if m.enabledBySettings() {
		m.start(ctx)
	}
}

// Stop stops the state machine, recording the user as inactive and saving
// the history a final time. The Manager may be started again.
func (m *Manager) Stop(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.stopped = true
	if m.unsubscribeSettings != nil {
		m.unsubscribeSettings()
		m.unsubscribeSettings = nil
	}
	m.stop(ctx)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserState returns the last observed user state.
func (m *Manager) UserState() history.UserState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userState
}

// DailyLimitTime returns the UNIX time at which the daily limit will be
// reached if the user stays active, the time it was reached, or 0 when
// neither is known.
func (m *Manager) DailyLimitTime() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.RealTimeSecs()
	startOfToday, _ := DayBounds(now, m.location)
	return m.dailyLimitTimeLocked(now, ActiveTimeTodaySecs(m.transitions, now, startOfToday))
}

// ActiveTimeTodaySecs returns today's active time so far.
func (m *Manager) ActiveTimeTodaySecs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.RealTimeSecs()
	startOfToday, _ := DayBounds(now, m.location)
	return ActiveTimeTodaySecs(m.transitions, now, startOfToday)
}

// Transitions returns a copy of the in-memory history.
func (m *Manager) Transitions() []history.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Transition(nil), m.transitions...)
}

// Flush waits for pending asynchronous saves.
func (m *Manager) Flush() {
	m.persistWG.Wait()
}

func (m *Manager) enabledBySettings() bool {
	return m.settings.HistoryEnabled() || m.settings.DailyLimitEnabled()
}

func (m *Manager) onSettingsChanged() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	// A notification that raced with Stop must not restart tracking.
	if m.stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	enabled := m.enabledBySettings()
	switch {
	case enabled && !running:
		m.start(ctx)
	case !enabled && running:
		m.stop(ctx)
	case running:
		m.logger.Debug().Msg("Settings changed, recomputing state")
		m.mu.Lock()
		b := m.batchLocked(m.updateStateLocked())
		m.mu.Unlock()
		m.emit(b)
	}
}

func (m *Manager) start(ctx context.Context) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		return
	}

	transitions, err := m.history.Load(ctx)
	if err != nil {
		var parseErr *history.ParseError
		if errors.As(err, &parseErr) {
			m.logger.Warn().Err(err).Msg("Discarding malformed usage history")
			metrics.HistoryLoadErrors.WithLabelValues("parse").Inc()
		} else {
			m.logger.Warn().Err(err).Msg("Failed to load usage history, starting empty")
			metrics.HistoryLoadErrors.WithLabelValues("io").Inc()
		}
		transitions = nil
	}

	m.mu.Lock()
	m.running = true
	m.transitions = transitions
	m.userState = history.UserStateActive
	m.clockOffsetSecs = clock.Offset(m.clock)
	m.persistCtx, m.persistCancel = context.WithCancel(context.Background())

	// The daemon only runs inside a session, so the user is assumed active
	// until the session source says otherwise.
	if last, ok := history.LastState(m.transitions); !ok || last != history.UserStateActive {
		m.addTransitionLocked(history.UserStateInactive, history.UserStateActive, m.clock.RealTimeSecs())
	}
	m.mu.Unlock()

	m.logger.Info().
		Int("transitions", len(transitions)).
		Bool("daily_limit_enabled", m.settings.DailyLimitEnabled()).
		Int64("daily_limit_secs", m.settings.DailyLimitSecs()).
		Msg("Starting time limits tracking")

	unsubscribeTimeChange := m.clock.NotifyTimeChange(m.onTimeChanged)
	unsubscribeSession := m.session.Subscribe(m.onSessionChanged)

	m.mu.Lock()
	m.unsubscribeTimeChange = unsubscribeTimeChange
	m.unsubscribeSession = unsubscribeSession
	b := m.batchLocked(m.updateStateLocked())
	m.mu.Unlock()
	m.emit(b)

	// Pick up a session that was already idle when we started.
	m.onSessionChanged()
}

func (m *Manager) stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	m.cancelTimerLocked()
	m.running = false
	unsubscribes := []func(){m.unsubscribeTimeChange, m.unsubscribeSession}
	m.unsubscribeTimeChange = nil
	m.unsubscribeSession = nil

	now := m.clock.RealTimeSecs()
	if m.userState != history.UserStateInactive {
		m.addTransitionLocked(m.userState, history.UserStateInactive, now)
		m.userState = history.UserStateInactive
	}
	transitions := history.Prune(m.transitions, now)
	m.transitions = nil

	var events []event
	if m.state != StateDisabled {
		m.logger.Info().Str("old_state", m.state.String()).Msg("Stopping time limits tracking")
		m.state = StateDisabled
		m.lastStateChangeTimeSecs = now
		events = append(events, event{kind: eventStateChanged, state: StateDisabled})
	}
	m.dailyLimitReachedAtSecs = 0
	if m.lastDailyLimitTime != 0 {
		m.lastDailyLimitTime = 0
		events = append(events, event{kind: eventDailyLimitTimeChanged})
	}
	cancel := m.persistCancel
	b := m.batchLocked(events)
	m.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		if unsubscribe != nil {
			unsubscribe()
		}
	}

	// Abandon queued background saves; this one is authoritative.
	cancel()
	m.saveMu.Lock()
	m.savedSeq = m.saveSeq.Add(1)
	if err := m.history.Save(ctx, transitions); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to save usage history on shutdown")
		metrics.HistoryWritesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.HistoryWritesTotal.WithLabelValues("ok").Inc()
	}
	m.saveMu.Unlock()
	m.persistWG.Wait()

	m.emit(b)
}

func (m *Manager) onSessionChanged() {
	newUserState := m.session.UserState()

	m.mu.Lock()
	if !m.running || newUserState == m.userState {
		m.mu.Unlock()
		return
	}

	m.addTransitionLocked(m.userState, newUserState, m.clock.RealTimeSecs())
	m.userState = newUserState
	b := m.batchLocked(m.updateStateLocked())
	m.persistLocked()
	m.mu.Unlock()

	m.emit(b)
}

func (m *Manager) onTimeout(gen uint64) {
	m.mu.Lock()
	if !m.running || gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	b := m.batchLocked(m.updateStateLocked())
	m.mu.Unlock()

	m.emit(b)
}

func (m *Manager) addTransitionLocked(oldState, newState history.UserState, wallTimeSecs int64) {
	// A clock set backwards without a change notification would otherwise
	// leave the history out of order, and unloadable.
	if n := len(m.transitions); n > 0 && wallTimeSecs < m.transitions[n-1].WallTimeSecs {
		m.logger.Debug().
			Int64("wall_time_secs", wallTimeSecs).
			Int64("previous_secs", m.transitions[n-1].WallTimeSecs).
			Msg("Clamping out of order transition")
		wallTimeSecs = m.transitions[n-1].WallTimeSecs
	}

	m.transitions = append(m.transitions, history.Transition{
		OldState:     oldState,
		NewState:     newState,
		WallTimeSecs: wallTimeSecs,
	})
	metrics.TransitionsTotal.WithLabelValues(newState.String()).Inc()

	m.logger.Debug().
		Str("old_state", oldState.String()).
		Str("new_state", newState.String()).
		Int64("wall_time_secs", wallTimeSecs).
		Msg("User state changed")
}

// updateStateLocked recomputes the state, reschedules the timer and returns
// the notifications to deliver once the lock is released.
func (m *Manager) updateStateLocked() []event {
	if !m.running {
		m.logger.Error().Msg("State update requested while disabled")
		return nil
	}

	now := m.clock.RealTimeSecs()
	startOfToday, startOfTomorrow := DayBounds(now, m.location)
	activeSecs := ActiveTimeTodaySecs(m.transitions, now, startOfToday)
	limitEnabled := m.settings.DailyLimitEnabled()
	limitSecs := m.settings.DailyLimitSecs()

	// Yesterday's limit no longer applies once a new day has begun.
	prevState := m.state
	if startOfToday > m.lastStateChangeTimeSecs && prevState == StateLimitReached {
		prevState = StateActive
	}

	m.cancelTimerLocked()

	newState := StateActive
	switch {
	case !limitEnabled:
	case activeSecs >= limitSecs:
		newState = StateLimitReached
		m.scheduleLocked(startOfTomorrow - now)
	case m.userState == history.UserStateActive:
		m.scheduleLocked(limitSecs - activeSecs)
	}

	var events []event
	if newState != prevState || newState != m.state {
		m.lastStateChangeTimeSecs = now
	}
	switch {
	case newState != StateLimitReached:
		m.dailyLimitReachedAtSecs = 0
	case newState != prevState:
		m.dailyLimitReachedAtSecs = LimitReachedAtSecs(m.transitions, now, startOfToday, limitSecs)
	}
	if newState != m.state {
		m.logger.Info().
			Str("old_state", m.state.String()).
			Str("new_state", newState.String()).
			Int64("active_secs", activeSecs).
			Msg("Time limits state changed")
		m.state = newState
		events = append(events, event{kind: eventStateChanged, state: newState})
	}

	if limitTime := m.dailyLimitTimeLocked(now, activeSecs); limitTime != m.lastDailyLimitTime {
		m.lastDailyLimitTime = limitTime
		events = append(events, event{kind: eventDailyLimitTimeChanged, limitTime: limitTime})
	}

	if newState == StateLimitReached && newState != prevState {
		events = append(events, event{kind: eventDailyLimitReached})
	}

	return events
}

func (m *Manager) dailyLimitTimeLocked(nowSecs, activeSecs int64) int64 {
	switch m.state {
	case StateLimitReached:
		return m.dailyLimitReachedAtSecs
	case StateActive:
		if !m.settings.DailyLimitEnabled() || m.userState != history.UserStateActive {
			return 0
		}
		return nowSecs + (m.settings.DailyLimitSecs() - activeSecs)
	default:
		return 0
	}
}

func (m *Manager) scheduleLocked(seconds int64) {
	if seconds < 1 {
		seconds = 1
	}

	m.timerGen++
	gen := m.timerGen
	m.timer = m.clock.AfterFunc(seconds, func() { m.onTimeout(gen) })

	m.logger.Debug().Int64("seconds", seconds).Msg("Scheduled state re-evaluation")
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// persistLocked prunes the in-memory history and saves a snapshot of it in
// the background.
func (m *Manager) persistLocked() {
	m.transitions = history.Prune(m.transitions, m.clock.RealTimeSecs())
	snapshot := append([]history.Transition(nil), m.transitions...)
	ctx := m.persistCtx

	seq := m.saveSeq.Add(1)
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()

		m.saveMu.Lock()
		defer m.saveMu.Unlock()

		if ctx.Err() != nil || seq < m.savedSeq {
			return
		}
		if err := m.history.Save(ctx, snapshot); err != nil {
			if !errors.Is(err, context.Canceled) {
				m.logger.Warn().Err(err).Msg("Failed to save usage history")
				metrics.HistoryWritesTotal.WithLabelValues("error").Inc()
			}
			return
		}
		m.savedSeq = seq
		metrics.HistoryWritesTotal.WithLabelValues("ok").Inc()
	}()
}

func (m *Manager) batchLocked(events []event) batch {
	if len(events) == 0 {
		return batch{}
	}
	m.batchSeq++
	return batch{seq: m.batchSeq, events: events}
}

// emit delivers b to the observers once every earlier batch has been
// delivered. Must be called without m.mu held.
func (m *Manager) emit(b batch) {
	if len(b.events) == 0 {
		return
	}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	for m.deliveredSeq+1 != b.seq {
		m.deliverCond.Wait()
	}
	defer func() {
		m.deliveredSeq = b.seq
		m.deliverCond.Broadcast()
	}()

	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, e := range b.events {
		for _, o := range observers {
			switch e.kind {
			case eventStateChanged:
				o.StateChanged(e.state)
			case eventDailyLimitTimeChanged:
				o.DailyLimitTimeChanged(e.limitTime)
			case eventDailyLimitReached:
				o.DailyLimitReached()
			}
		}
	}
}
