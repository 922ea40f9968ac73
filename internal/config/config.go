package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Chart    ChartConfig    `mapstructure:"chart"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig selects and tunes the storage backend
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"` // sqlite or postgres
	Path           string        `mapstructure:"path"`   // sqlite file
	URL            string        `mapstructure:"url"`    // postgres connection URL
	MinConns       int32         `mapstructure:"min_conns"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryLimit     int           `mapstructure:"query_limit"`
}

// CacheConfig holds Redis chart cache configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ChartConfig holds sustained-EV detection parameters
type ChartConfig struct {
	EVThreshold float64       `mapstructure:"ev_threshold"`
	MaxGap      time.Duration `mapstructure:"max_gap"`
}

// MonitorConfig holds background segment scan configuration
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	Lookback           time.Duration `mapstructure:"lookback"`
	TopK               int           `mapstructure:"top_k"`
	CooldownMultiplier int           `mapstructure:"cooldown_multiplier"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file and
// EVGRAPH_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// EVGRAPH_DATABASE_URL overrides database.url
	v.SetEnvPrefix("EVGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/evgraph.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.query_limit", 1000)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "30s")

	v.SetDefault("chart.ev_threshold", 5.0)
	v.SetDefault("chart.max_gap", "4s")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.poll_interval", "1m")
	v.SetDefault("monitor.lookback", "15m")
	v.SetDefault("monitor.top_k", 10)
	v.SetDefault("monitor.cooldown_multiplier", 30)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return fmt.Errorf("server.mode must be one of: debug, release, test")
	}

	switch c.Database.Driver {
	case "sqlite":
		// an empty path falls back to a temp-dir database
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
		if c.Database.MaxConns < 1 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database.min_conns and database.max_conns must satisfy 0 <= min <= max, max >= 1")
		}
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}
	if c.Database.QueryLimit < 1 {
		return fmt.Errorf("database.query_limit must be at least 1")
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required when cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive")
		}
	}

	if c.Chart.EVThreshold < 0 {
		return fmt.Errorf("chart.ev_threshold must not be negative")
	}
	if c.Chart.MaxGap < 0 {
		return fmt.Errorf("chart.max_gap must not be negative")
	}

	if c.Monitor.Enabled {
		if c.Monitor.PollInterval < 10*time.Second {
			return fmt.Errorf("monitor.poll_interval must be at least 10 seconds")
		}
		if c.Monitor.Lookback < c.Monitor.PollInterval {
			return fmt.Errorf("monitor.lookback must be at least monitor.poll_interval")
		}
		if c.Monitor.TopK < 1 {
			return fmt.Errorf("monitor.top_k must be at least 1")
		}
		if c.Monitor.CooldownMultiplier < 1 {
			return fmt.Errorf("monitor.cooldown_multiplier must be at least 1")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
