package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the gateway process.
type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string

	// PostgresDSN selects the durable post store; empty runs in-memory.
	PostgresDSN string
	// RedisAddr selects the shared rate-limit window; empty runs in-process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PollInterval      time.Duration
	BatchSize         int
	CallTimeout       time.Duration
	RateLimitWindow   time.Duration
	RateLimitCooldown time.Duration
	BackoffStep       time.Duration
	DefaultMaxRetries int
	PaceQPS           float64
	PaceBurst         int

	// ChannelsFile optionally overrides limits and supplies credentials.
	ChannelsFile  string
	ChannelLimits map[string]int

	// LinkedInAuthorURN is the default author for LinkedIn posts
	// (urn:li:person:... or urn:li:organization:...).
	LinkedInAuthorURN string
}

// Load reads configuration from environment variables with defaults suitable
// for local development.
func Load() Config {
	return Config{
		Env:               getEnv("APP_ENV", "dev"),
		ListenAddr:        getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 60*time.Second),
		BatchSize:         getEnvInt("BATCH_SIZE", 100),
		CallTimeout:       getEnvDuration("CALL_TIMEOUT", 30*time.Second),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitCooldown: getEnvDuration("RATE_LIMIT_COOLDOWN", 15*time.Minute),
		BackoffStep:       getEnvDuration("BACKOFF_STEP", 5*time.Minute),
		DefaultMaxRetries: getEnvInt("DEFAULT_MAX_RETRIES", 3),
		PaceQPS:           getEnvFloat("PACE_QPS", 0),
		PaceBurst:         getEnvInt("PACE_BURST", 1),
		ChannelsFile:      getEnv("CHANNELS_FILE", ""),
		ChannelLimits:     getEnvLimits("CHANNEL_LIMITS", DefaultChannelLimits()),
		LinkedInAuthorURN: getEnv("LINKEDIN_AUTHOR_URN", ""),
	}
}

// DefaultChannelLimits is the built-in posts-per-hour table; overridable per
// deployment through CHANNEL_LIMITS or the channels file.
func DefaultChannelLimits() map[string]int {
	return map[string]int{
		"twitter":   15,
		"linkedin":  5,
		"facebook":  10,
		"instagram": 5,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getEnvLimits parses "twitter=20,linkedin=3" style overrides on top of the
// defaults.
func getEnvLimits(key string, def map[string]int) map[string]int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := make(map[string]int, len(def))
	for k, n := range def {
		out[k] = n
	}
	for _, part := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(kv[1])); err == nil && n > 0 {
			out[strings.TrimSpace(kv[0])] = n
		}
	}
	return out
}
