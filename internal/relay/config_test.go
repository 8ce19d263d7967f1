package relay

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)

	req.Equal(":8081", cfg.ListenAddr)
	req.Equal("data", cfg.DataDir)
	req.Equal(int64(32*1024), cfg.MaxMessageSize)
	req.Equal(256, cfg.SendBuffer)
	req.Equal(20, cfg.RateLimitBurst)
	req.Equal(time.Second, cfg.RateLimitRefill)
	req.Equal(10*time.Second, cfg.ShutdownTimeout)
	req.Equal(slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DATA_DIR", "/tmp/relay")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(":9999", cfg.ListenAddr)
	req.Equal("/tmp/relay", cfg.DataDir)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Origins())
	req.Equal(slog.LevelDebug, cfg.SlogLevel())
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
}

func TestOriginsSkipsEmptyEntries(t *testing.T) {
	cfg := Config{AllowedOrigins: "http://localhost:8081,, https://app.example ,"}
	require.Equal(t,
		[]string{"http://localhost:8081", "https://app.example"},
		cfg.Origins())
}

func TestSlogLevelUnknownFallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "verbose"}
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
