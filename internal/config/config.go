package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOCONTROL_SERVER_ADDR
const EnvPrefix = "AUTOCONTROL"

// Config is the service configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Actions   ActionsConfig   `mapstructure:"actions"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	QueueSize    int           `mapstructure:"queue_size"`
	LogCapacity  int           `mapstructure:"log_capacity"`
}

type ActionsConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	AllowedURLPrefix string        `mapstructure:"allowed_url_prefix"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	Burst            int           `mapstructure:"burst"`
}

type StatsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	CPUSample       time.Duration `mapstructure:"cpu_sample"`
}

type AuthConfig struct {
	AdminPassword string        `mapstructure:"admin_password"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Location returns the time zone tasks are evaluated in
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || strings.EqualFold(c.App.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that have no usable fallback
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Scheduler.PollInterval < time.Second {
		return fmt.Errorf("scheduler.poll_interval must be at least 1s, got %s", c.Scheduler.PollInterval)
	}
	if c.Scheduler.QueueSize <= 0 {
		return errors.New("scheduler.queue_size must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autocontrol")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "sqlite3")
	v.SetDefault("storage.path", "data/autocontrol.db")

	v.SetDefault("scheduler.poll_interval", 30*time.Second)
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("scheduler.log_capacity", 100)

	v.SetDefault("actions.endpoint", "")
	v.SetDefault("actions.allowed_url_prefix", "https://script.google.com/")
	v.SetDefault("actions.timeout", 30*time.Second)
	v.SetDefault("actions.rate_limit", 2.0)
	v.SetDefault("actions.burst", 4)

	v.SetDefault("stats.refresh_interval", 60*time.Second)
	v.SetDefault("stats.cpu_sample", 200*time.Millisecond)

	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("auth.session_ttl", 12*time.Hour)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
}

// Manager loads the configuration file and reloads it on change
type Manager struct {
	logger   *zap.Logger
	v        *viper.Viper
	fileUsed bool

	mu   sync.RWMutex
	cfg  *Config
	subs []func(*Config)
}

// NewManager creates a manager reading path. Environment variables with
// the AUTOCONTROL_ prefix override file values.
func NewManager(path string, logger *zap.Logger) *Manager {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return &Manager{
		logger: logger.Named("config"),
		v:      v,
	}
}

// Load reads and validates the configuration. A missing file falls back
// to defaults and environment overrides.
func (m *Manager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		m.logger.Info("Config file not found, using defaults",
			zap.String("path", m.v.ConfigFileUsed()))
	} else {
		m.fileUsed = true
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.cfg = &cfg
	m.mu.Unlock()
	return &cfg, nil
}

// Get returns the last loaded configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnChange registers fn to receive every successfully reloaded configuration
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Watch reloads the configuration whenever the file changes.
// Invalid edits are logged and the previous configuration stays active.
func (m *Manager) Watch() {
	if !m.fileUsed {
		return
	}

	m.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := m.Load()
		if err != nil {
			m.logger.Error("Failed to reload config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		m.logger.Info("Config reloaded", zap.String("file", e.Name))

		m.mu.RLock()
		subs := append([]func(*Config){}, m.subs...)
		m.mu.RUnlock()
		for _, fn := range subs {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}
