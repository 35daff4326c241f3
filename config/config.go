package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Sync    SyncConfig    `yaml:"sync"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Watcher WatcherConfig `yaml:"watcher"`
}

// BackendConfig decides the transport: no API base URL means mock mode, a push URL
// (ws://, wss:// or kafka://) means push mode, otherwise polling.
type BackendConfig struct {
	APIBaseURL            string `yaml:"api_base_url"`
	PushURL               string `yaml:"push_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

type SyncConfig struct {
	PollBaseMs             int     `yaml:"poll_base_ms"`
	PollFactor             float64 `yaml:"poll_factor"`
	PollCeilingMs          int     `yaml:"poll_ceiling_ms"`
	PollRateLimitPerMinute int     `yaml:"poll_rate_limit_per_minute"`
	ReconnectDelayMs       int     `yaml:"reconnect_delay_ms"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MirrorTopic string `yaml:"mirror_topic"`
}

type WatcherConfig struct {
	HTTPAddr   string `yaml:"http_addr"`
	SelectedID string `yaml:"selected_id"`
	LogLevel   string `yaml:"log_level"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// Load builds the process configuration once: the YAML file (optional), then .env and the
// environment, then defaults. Nothing reads the environment after this.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	if filename != "" {
		var err error
		if cfg, err = LoadConfig(filename); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process environment")
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overlays non-empty environment values:
// API_BASE (or BACKEND_URL), WS_URL, HTTP_ADDR, SELECTED_ID, REDIS_ADDR, KAFKA_BROKER.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}
	if v, ok := get("API_BASE", "BACKEND_URL"); ok {
		c.Backend.APIBaseURL = v
	}
	if v, ok := get("WS_URL"); ok {
		c.Backend.PushURL = v
	}
	if v, ok := get("HTTP_ADDR"); ok {
		c.Watcher.HTTPAddr = v
	}
	if v, ok := get("SELECTED_ID"); ok {
		c.Watcher.SelectedID = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Host, c.Redis.Port = splitHostPort(v, c.Redis.Port)
	}
	if v, ok := get("KAFKA_BROKER"); ok {
		c.Kafka.Host, c.Kafka.Port = splitHostPort(v, c.Kafka.Port)
	}
}

func splitHostPort(addr string, defPort int) (string, int) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defPort
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return host, defPort
	}
	return host, p
}

func (c *Config) ApplyDefaults() {
	c.Backend.APIBaseURL = strings.TrimSpace(c.Backend.APIBaseURL)
	c.Backend.PushURL = strings.TrimSpace(c.Backend.PushURL)
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = 10
	}
	if c.Sync.PollBaseMs <= 0 {
		c.Sync.PollBaseMs = 2500
	}
	if c.Sync.PollFactor < 1 {
		c.Sync.PollFactor = 1.6
	}
	if c.Sync.PollCeilingMs <= 0 {
		c.Sync.PollCeilingMs = 30000
	}
	if c.Sync.ReconnectDelayMs <= 0 {
		c.Sync.ReconnectDelayMs = 1500
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Kafka.Host != "" && c.Kafka.Port == 0 {
		c.Kafka.Port = 9092
	}
	if c.Watcher.HTTPAddr == "" {
		c.Watcher.HTTPAddr = ":8083"
	}
	if c.Watcher.LogLevel == "" {
		c.Watcher.LogLevel = "info"
	}
}

func (c BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c SyncConfig) PollBase() time.Duration    { return time.Duration(c.PollBaseMs) * time.Millisecond }
func (c SyncConfig) PollCeiling() time.Duration { return time.Duration(c.PollCeilingMs) * time.Millisecond }
func (c SyncConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// Addr is empty when Redis is not configured.
func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Brokers is nil when Kafka is not configured.
func (c KafkaConfig) Brokers() []string {
	if c.Host == "" {
		return nil
	}
	return []string{net.JoinHostPort(c.Host, strconv.Itoa(c.Port))}
}

func (c WatcherConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
