// Package config builds runtime configuration from environment variables so
// main stays lean. Every value has a development default; production
// deployments override through the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// PostgresConfig holds the event store connection settings. An empty URL
// selects the in-memory store.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds the alert rule mirror settings. An empty URL disables
// Redis and keeps rules in memory only.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the notification producer settings. Empty brokers
// disable publishing.
type KafkaConfig struct {
	Brokers     []string
	AlertTopic  string
	EventsTopic string
}

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// AlertInterval paces windowed alert evaluation; ArchivalInterval paces
	// retention sweeps.
	AlertInterval    time.Duration
	ArchivalInterval time.Duration

	// ExportKey is the hex-encoded 32-byte key for encrypted exports.
	// Empty disables encryption.
	ExportKey []byte
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:          envOr("BITACORA_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("POSTGRES_URL"),
			MaxOpenConns: envInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnLifetime: envDuration("POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			AlertTopic:  envOr("KAFKA_ALERT_TOPIC", "bitacora.alerts"),
			EventsTopic: envOr("KAFKA_EVENTS_TOPIC", "bitacora.events"),
		},
		AlertInterval:    envDuration("ALERT_INTERVAL", time.Minute),
		ArchivalInterval: envDuration("ARCHIVAL_INTERVAL", time.Hour),
	}

	if raw := os.Getenv("EXPORT_ENCRYPTION_KEY"); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("decode EXPORT_ENCRYPTION_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("EXPORT_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.ExportKey = key
	}

	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
