package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
backend:
  api_base_url: "http://localhost:8080/api"
  push_url: "ws://localhost:8080/ws"
  request_timeout_seconds: 5
sync:
  poll_base_ms: 1000
  poll_factor: 2
  poll_ceiling_ms: 8000
  poll_rate_limit_per_minute: 30
redis:
  host: "localhost"
  port: 6379
kafka:
  host: "localhost"
  port: 9092
  mirror_topic: "deliveries.merged"
watcher:
  http_addr: ":8090"
  selected_id: "ORD-10492"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api", cfg.Backend.APIBaseURL)
	require.Equal(t, "ws://localhost:8080/ws", cfg.Backend.PushURL)
	require.Equal(t, 5*time.Second, cfg.Backend.RequestTimeout())
	require.Equal(t, time.Second, cfg.Sync.PollBase())
	require.Equal(t, 2.0, cfg.Sync.PollFactor)
	require.Equal(t, 8*time.Second, cfg.Sync.PollCeiling())
	require.Equal(t, 30, cfg.Sync.PollRateLimitPerMinute)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "deliveries.merged", cfg.Kafka.MirrorTopic)
	require.Equal(t, ":8090", cfg.Watcher.HTTPAddr)
	require.Equal(t, "ORD-10492", cfg.Watcher.SelectedID)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config file")

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("backend: [1, 2"), 0o600))
	_, err = LoadConfig(p)
	require.ErrorContains(t, err, "failed to unmarshal YAML")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	require.Empty(t, cfg.Backend.APIBaseURL)
	require.Equal(t, 10*time.Second, cfg.Backend.RequestTimeout())
	require.Equal(t, 2500*time.Millisecond, cfg.Sync.PollBase())
	require.Equal(t, 1.6, cfg.Sync.PollFactor)
	require.Equal(t, 30*time.Second, cfg.Sync.PollCeiling())
	require.Equal(t, 1500*time.Millisecond, cfg.Sync.ReconnectDelay())
	require.Equal(t, ":8083", cfg.Watcher.HTTPAddr)
	require.Empty(t, cfg.Redis.Addr())
	require.Nil(t, cfg.Kafka.Brokers())
	require.Equal(t, slog.LevelInfo, cfg.Watcher.SlogLevel())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"API_BASE":     "  ",
		"BACKEND_URL":  "http://backend:8080",
		"WS_URL":       "wss://push.example.com/updates",
		"REDIS_ADDR":   "redis:6380",
		"KAFKA_BROKER": "kafka",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &Config{Backend: BackendConfig{APIBaseURL: "http://from-file"}}
	cfg.ApplyEnv(lookup)
	cfg.ApplyDefaults()

	require.Equal(t, "http://backend:8080", cfg.Backend.APIBaseURL)
	require.Equal(t, "wss://push.example.com/updates", cfg.Backend.PushURL)
	require.Equal(t, "redis:6380", cfg.Redis.Addr())
	require.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers())
}

func TestApplyEnv_APIBaseWins(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyEnv(func(k string) (string, bool) {
		switch k {
		case "API_BASE":
			return "http://a", true
		case "BACKEND_URL":
			return "http://b", true
		}
		return "", false
	})
	require.Equal(t, "http://a", cfg.Backend.APIBaseURL)
}

func TestLoad_WithoutFile(t *testing.T) {
	t.Setenv("API_BASE", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("WS_URL", "ws://localhost:9/ws")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.Backend.APIBaseURL)
	require.Equal(t, "ws://localhost:9/ws", cfg.Backend.PushURL)
	require.Equal(t, 2500, cfg.Sync.PollBaseMs)
}

func TestSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, WatcherConfig{LogLevel: "debug"}.SlogLevel())
	require.Equal(t, slog.LevelInfo, WatcherConfig{LogLevel: "loud"}.SlogLevel())
}
