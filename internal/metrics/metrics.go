package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// States lists every value of the state label, in the order used by SetState.
var States = []string{"disabled", "active", "limit-reached"}

var (
	// State machine metrics
	State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "screentime_state",
			Help: "Current time limits state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	DailyLimitTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_daily_limit_timestamp_seconds",
			Help: "UNIX time at which the daily limit is or was reached, 0 if unknown",
		},
	)

	LimitReachedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_limit_reached_total",
			Help: "Number of times the daily limit was reached",
		},
	)

	// Activity metrics
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_user_transitions_total",
			Help: "User activity transitions recorded",
		},
		[]string{"new_state"},
	)

	ClockChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_clock_changes_total",
			Help: "Real-time clock changes the history was adjusted for",
		},
	)

	// History persistence metrics
	HistoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_history_writes_total",
			Help: "History saves by result",
		},
		[]string{"result"},
	)

	HistoryLoadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_history_load_errors_total",
			Help: "History loads that failed and started from an empty history",
		},
		[]string{"reason"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_notifications_total",
			Help: "Desktop notifications sent",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		State,
		DailyLimitTime,
		LimitReachedTotal,
		TransitionsTotal,
		ClockChangesTotal,
		HistoryWritesTotal,
		HistoryLoadErrors,
		NotificationsTotal,
	)
}

// SetState marks state as the current one in the State gauge.
func SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		State.WithLabelValues(s).Set(v)
	}
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
