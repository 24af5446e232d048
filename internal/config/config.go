package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "omnirelay"
	DefaultPGSSLMode       = "disable"
	DefaultQueueAttempts   = 3
	DefaultBackoffBaseMs   = 1000
	DefaultBackoffMaxMs    = 60000
	DefaultWorkerBurst     = 5
	DefaultPollIntervalMs  = 500
	DefaultIdleDelayMs     = 800
	DefaultBufferTimeoutMs = 10000
	DefaultBufferTTLSec    = 300
	DefaultReclaimLeaseSec = 600
	DefaultReclaimSchedule = "@every 1m"
)

type Config struct {
	Log           LogConfig           `toml:"log"`
	Server        ServerConfig        `toml:"server"`
	Postgres      PostgresConfig      `toml:"postgres"`
	Queue         QueueConfig         `toml:"queue"`
	Buffer        BufferConfig        `toml:"buffer"`
	Reclaim       ReclaimConfig       `toml:"reclaim"`
	Collaborators CollaboratorsConfig `toml:"collaborators"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pool connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type QueueConfig struct {
	Attempts       int `toml:"attempts"`
	BackoffBaseMs  int `toml:"backoff_base_ms"`
	BackoffMaxMs   int `toml:"backoff_max_ms"`
	PollIntervalMs int `toml:"poll_interval_ms"`
	Burst          int `toml:"burst"`
	IdleDelayMs    int `toml:"idle_delay_ms"`
}

type BufferConfig struct {
	DefaultTimeoutMs int `toml:"default_timeout_ms"`
	TTLSeconds       int `toml:"ttl_seconds"`
}

// ReclaimConfig controls the stale PROCESSING sweep. Disabled by default:
// events stuck in PROCESSING after a crash are left to operational tooling
// unless enabled here.
type ReclaimConfig struct {
	Enabled      bool   `toml:"enabled"`
	LeaseSeconds int    `toml:"lease_seconds"`
	Schedule     string `toml:"schedule"`
}

type CollaboratorsConfig struct {
	AI       EndpointConfig `toml:"ai"`
	Vision   EndpointConfig `toml:"vision"`
	Outbound EndpointConfig `toml:"outbound"`
}

type EndpointConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Queue: QueueConfig{
			Attempts:       DefaultQueueAttempts,
			BackoffBaseMs:  DefaultBackoffBaseMs,
			BackoffMaxMs:   DefaultBackoffMaxMs,
			PollIntervalMs: DefaultPollIntervalMs,
			Burst:          DefaultWorkerBurst,
			IdleDelayMs:    DefaultIdleDelayMs,
		},
		Buffer: BufferConfig{
			DefaultTimeoutMs: DefaultBufferTimeoutMs,
			TTLSeconds:       DefaultBufferTTLSec,
		},
		Reclaim: ReclaimConfig{
			Enabled:      false,
			LeaseSeconds: DefaultReclaimLeaseSec,
			Schedule:     DefaultReclaimSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
