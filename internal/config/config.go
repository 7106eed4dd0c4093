package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Logging       LoggingConfig      `mapstructure:"logging"`
	Limits        LimitsConfig       `mapstructure:"limits"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Session       SessionConfig      `mapstructure:"session"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LimitsConfig defines the screen time settings
type LimitsConfig struct {
	HistoryEnabled    bool   `mapstructure:"history_enabled"`
	DailyLimitEnabled bool   `mapstructure:"daily_limit_enabled"`
	DailyLimit        string `mapstructure:"daily_limit"`
}

// DailyLimitSecs returns the configured daily limit in whole seconds.
func (c LimitsConfig) DailyLimitSecs() int64 {
	d, err := time.ParseDuration(c.DailyLimit)
	if err != nil {
		return 0
	}
	return int64(d / time.Second)
}

// StorageConfig defines where the usage history is persisted
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "file", "bolt" or "redis"
	Path  string      `mapstructure:"path"` // directory for "file", database file for "bolt"
	Key   string      `mapstructure:"key"`  // document name, usually one per user
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SessionConfig selects the login-session activity source
type SessionConfig struct {
	Source    string `mapstructure:"source"`     // "logind" or "static"
	SessionID string `mapstructure:"session_id"` // logind session, defaults to $XDG_SESSION_ID
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// NotificationConfig defines desktop notification behaviour
type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	WarningBefore string `mapstructure:"warning_before"`
}

// Loader reads the configuration file and optionally watches it for edits.
type Loader struct {
	v    *viper.Viper
	path string
	mu   sync.Mutex
}

// NewLoader creates a loader for the given file path.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCREENTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: configPath}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the file and returns the validated configuration.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Read config file
	if err := l.v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	return l.decode()
}

// Watch calls onChange with the reloaded configuration every time the file
// changes. Invalid edits are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile bypasses the search path, so a missing file surfaces
	// as a plain fs error.
	return os.IsNotExist(err)
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/screentime/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "/etc/screentime/config.yaml"
	}
	return filepath.Join(dir, "screentime", "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/screentime.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "screentime")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "screentime")
	}
	return filepath.Join(home, ".local", "share", "screentime")
}

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// KnownKeys returns the set of recognised configuration keys.
func KnownKeys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Limit defaults
	v.SetDefault("limits.history_enabled", true)
	v.SetDefault("limits.daily_limit_enabled", false)
	v.SetDefault("limits.daily_limit", "8h")

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.path", DefaultDataDir())
	v.SetDefault("storage.key", "session-active-history")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "screentime:")
	v.SetDefault("storage.redis.pool_size", 2)
	v.SetDefault("storage.redis.min_idle_conns", 0)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Session defaults
	v.SetDefault("session.source", "logind")
	v.SetDefault("session.session_id", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9477")

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.warning_before", "10m")
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", cfg.Logging.Level)
	}

	if cfg.Limits.DailyLimit != "" {
		d, err := time.ParseDuration(cfg.Limits.DailyLimit)
		if err != nil {
			return fmt.Errorf("invalid daily limit: %w", err)
		}
		if d <= 0 || d > 24*time.Hour {
			return fmt.Errorf("daily limit must be between 1s and 24h, got %s", d)
		}
	}
	if cfg.Limits.DailyLimitEnabled && cfg.Limits.DailyLimit == "" {
		return fmt.Errorf("daily limit is enabled but no limit is set")
	}

	switch cfg.Storage.Type {
	case "file", "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
	case "":
		cfg.Storage.Type = "file"
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Storage.Key == "" {
		return fmt.Errorf("storage key is required")
	}

	switch cfg.Session.Source {
	case "logind", "static":
	default:
		return fmt.Errorf("unsupported session source: %s", cfg.Session.Source)
	}

	if cfg.Notifications.WarningBefore != "" {
		if _, err := time.ParseDuration(cfg.Notifications.WarningBefore); err != nil {
			return fmt.Errorf("invalid notification warning: %w", err)
		}
	}

	return nil
}
