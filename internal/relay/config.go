// Runtime configuration for the relay process, loaded from the environment.
package relay

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the relay's runtime settings. Zero values are replaced with
// serving defaults by LoadConfig.
type Config struct {
	ListenAddr      string        `env:"LISTEN_ADDR"`
	DataDir         string        `env:"DATA_DIR"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	SendBuffer      int           `env:"SEND_BUFFER"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

// LoadConfig reads the environment and fills in defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// DefaultConfig returns the serving defaults without touching the environment.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8081"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = "http://localhost:8081"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 32 * 1024
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
}

// Origins splits the comma-separated allow list.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps the configured level name onto slog's scale.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
