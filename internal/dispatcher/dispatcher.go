// Package dispatcher turns time limits changes into logs, metrics and
// desktop notifications.
package dispatcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/timelimits"
	"github.com/rs/zerolog"
)

// Config holds dispatcher configuration
type Config struct {
	// Notify enables desktop notifications.
	Notify bool
	// WarningBefore is how long before the limit to warn. Zero disables
	// the warning.
	WarningBefore time.Duration
}

// Dispatcher implements timelimits.Observer.
type Dispatcher struct {
	clock    clock.Clock
	notifier Notifier
	config   Config
	logger   zerolog.Logger

	mu         sync.Mutex
	state      timelimits.State
	warning    clock.Timer
	warningGen uint64
}

var _ timelimits.Observer = (*Dispatcher)(nil)

// New creates a dispatcher. A nil notifier disables notifications.
func New(clk clock.Clock, notifier Notifier, config Config, logger zerolog.Logger) *Dispatcher {
	if notifier == nil || !config.Notify {
		notifier = NopNotifier{}
	}
	metrics.SetState(timelimits.StateDisabled.String())

	return &Dispatcher{
		clock:    clk,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// StateChanged records the new state.
func (d *Dispatcher) StateChanged(state timelimits.State) {
	d.mu.Lock()
	d.state = state
	if state != timelimits.StateActive {
		d.cancelWarningLocked()
	}
	d.mu.Unlock()

	metrics.SetState(state.String())
	d.logger.Info().Str("state", state.String()).Msg("Screen time state changed")
}

// DailyLimitTimeChanged schedules the warning ahead of the new limit time.
func (d *Dispatcher) DailyLimitTimeChanged(unixSecs int64) {
	metrics.DailyLimitTime.Set(float64(unixSecs))

	logEvent := d.logger.Debug()
	if unixSecs != 0 {
		logEvent = logEvent.Time("limit_time", time.Unix(unixSecs, 0))
	}
	logEvent.Int64("limit_time_secs", unixSecs).Msg("Daily limit time changed")

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelWarningLocked()
	if unixSecs == 0 || d.state != timelimits.StateActive || d.config.WarningBefore <= 0 {
		return
	}

	warnBefore := int64(d.config.WarningBefore / time.Second)
	delay := unixSecs - warnBefore - d.clock.RealTimeSecs()
	if delay < 0 {
		// Already inside the warning window.
		return
	}
	gen := d.warningGen
	d.warning = d.clock.AfterFunc(delay, func() { d.warn(gen) })
}

// DailyLimitReached notifies the user that their time is up.
func (d *Dispatcher) DailyLimitReached() {
	metrics.LimitReachedTotal.Inc()
	d.logger.Warn().Msg("Daily screen time limit reached")

	d.send("limit", Notification{
		Summary:  "Screen time limit reached",
		Body:     "You have used all of today's screen time.",
		Critical: true,
	})
}

// Close cancels any pending warning.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelWarningLocked()
}

func (d *Dispatcher) warn(gen uint64) {
	d.mu.Lock()
	if gen != d.warningGen || d.state != timelimits.StateActive {
		d.mu.Unlock()
		return
	}
	d.warning = nil
	d.mu.Unlock()

	d.send("warning", Notification{
		Summary: "Screen time almost up",
		Body:    fmt.Sprintf("Your screen time limit will be reached in %s.", formatDuration(d.config.WarningBefore)),
	})
}

func (d *Dispatcher) send(kind string, n Notification) {
	if err := d.notifier.Notify(n); err != nil {
		d.logger.Warn().Err(err).Str("kind", kind).Msg("Failed to send notification")
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues(kind, "ok").Inc()
}

func (d *Dispatcher) cancelWarningLocked() {
	if d.warning != nil {
		d.warning.Stop()
		d.warning = nil
	}
	d.warningGen++
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m == 1:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", m)
	}
}
