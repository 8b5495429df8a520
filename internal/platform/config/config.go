package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Engine      EngineConfig
	Kafka       KafkaConfig
	LogLevel    string
}

// RedisConfig configures the optional application cache. An empty URL
// disables caching entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// EngineConfig configures the policy engine client. FailOpen defaults to
// false: an unreachable engine blocks deployments.
type EngineConfig struct {
	URL      string
	Timeout  time.Duration
	FailOpen bool
}

// KafkaConfig configures decision notifications. Empty brokers fall back to
// log-only notifications.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envOr("GATEKEEPER_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     envDuration("APPLICATION_CACHE_TTL", 2*time.Minute),
		},
		Engine: EngineConfig{
			URL:      envOr("OPA_URL", "http://localhost:8181"),
			Timeout:  envDuration("ENGINE_TIMEOUT", 10*time.Second),
			FailOpen: os.Getenv("ENGINE_FAIL_OPEN") == "true",
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   os.Getenv("KAFKA_DECISIONS_TOPIC"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
