package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/dispatcher"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/session"
	"github.com/goodtune/screentime/internal/settings"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/storage/file"
	"github.com/goodtune/screentime/internal/storage/redis"
	"github.com/goodtune/screentime/internal/systemd"
	"github.com/goodtune/screentime/internal/timelimits"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the screen time daemon",
	Long:  `Track the login session, enforce the daily limit and send notifications until stopped.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting screentime")

	// Initialize storage
	docs, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("key", cfg.Storage.Key).
		Msg("Storage initialized")

	clk := clock.NewRealClock()
	defer func() { _ = clk.Close() }()

	// Settings follow the configuration file
	limits := settings.NewStatic(settings.FromConfig(cfg.Limits))
	settings.Watch(loader, limits, func(err error) {
		logger.Warn().Err(err).Msg("Ignoring invalid configuration change")
	})

	activity, closeActivity, err := openSession(cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session source: %w", err)
	}
	defer closeActivity()

	// Initialize Dispatcher
	var notifier dispatcher.Notifier
	if cfg.Notifications.Enabled {
		dbusNotifier, err := dispatcher.NewDBusNotifier()
		if err != nil {
			logger.Warn().Err(err).Msg("Desktop notifications unavailable")
		} else {
			notifier = dbusNotifier
			defer func() { _ = dbusNotifier.Close() }()
		}
	}
	disp := dispatcher.New(clk, notifier, dispatcher.Config{
		Notify:        cfg.Notifications.Enabled,
		WarningBefore: parseDuration(cfg.Notifications.WarningBefore, 10*time.Minute),
	}, logger)
	defer disp.Close()

	// Initialize the time limits manager
	manager := timelimits.NewManager(timelimits.Config{
		Clock:    clk,
		Settings: limits,
		Session:  activity,
		History:  history.NewStore(docs, cfg.Storage.Key, clk),
	}, logger)
	manager.AddObserver(disp)

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, logger)
		ln, err := systemd.MetricsListener()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to get systemd metrics listener")
		} else if ln != nil {
			logger.Info().Msg("Running with systemd socket activation")
			metricsServer.SetListener(ln)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	if err := clk.WatchErr(); err != nil {
		logger.Warn().Err(err).Msg("Clock change notifications unavailable")
	}

	go systemd.RunWatchdog(ctx, logger)

	logger.Info().
		Str("state", manager.State().String()).
		Int64("active_secs", manager.ActiveTimeTodaySecs()).
		Msg("screentime startup complete")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	waitForShutdown(loader, limits, logger)

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timelimits.DefaultSaveTimeout)
	defer shutdownCancel()
	manager.Stop(shutdownCtx)

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("screentime stopped")

	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM. SIGHUP reloads the
// limits from the configuration file.
func waitForShutdown(loader *config.Loader, limits *settings.Static, logger zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			return
		}

		logger.Info().Msg("SIGHUP received, reloading configuration...")
		cfg, err := loader.Load()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to reload configuration")
			continue
		}
		limits.Set(settings.FromConfig(cfg.Limits))
		logger.Info().Msg("Configuration reloaded successfully")
	}
}

func openStorage(cfg config.StorageConfig) (storage.DocumentStore, error) {
	switch cfg.Type {
	case "", "file":
		return file.Open(cfg.Path)
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func openSession(cfg config.SessionConfig, logger zerolog.Logger) (session.Source, func(), error) {
	switch cfg.Source {
	case "static":
		logger.Info().Msg("Using static session source, the user is always active")
		return session.NewStatic(history.UserStateActive), func() {}, nil
	default:
		l, err := session.NewLogind(cfg.SessionID, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
