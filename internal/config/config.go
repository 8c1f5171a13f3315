package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Idempotency ledger backends.
const (
	IdempotencyStoreMemory = "memory"
	IdempotencyStoreRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	APIKey             string
	JobStageDelay      time.Duration
	IdempotencyStore   string
	IdempotencyTTL     time.Duration
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RateLimit          string
	ShutdownTimeout    time.Duration

	LogFormat         string
	LogLevel          string
	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsBuckets    string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TracingSampling   float64
	SecurityHeaders   bool
	ReadyRedisTimeout time.Duration
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "3001"),
		APIKey:             valueOrDefault(k.String("API_KEY"), "test_key"),
		JobStageDelay:      parseDuration(k.String("JOB_STAGE_DELAY"), "80ms"),
		IdempotencyStore:   strings.ToLower(valueOrDefault(k.String("IDEMPOTENCY_STORE"), IdempotencyStoreMemory)),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "0s"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20),
		RateLimit:          strings.TrimSpace(k.String("RATE_LIMIT")),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),

		LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:    parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "paymock"),
		MetricsBuckets:    k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:    parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:   parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		SecurityHeaders:   parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		ReadyRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		PprofEnabled:      parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.JobStageDelay <= 0 {
		return nil, errors.New("JOB_STAGE_DELAY must be positive")
	}
	switch cfg.IdempotencyStore {
	case IdempotencyStoreMemory:
	case IdempotencyStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when IDEMPOTENCY_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported IDEMPOTENCY_STORE %q", cfg.IdempotencyStore)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API_KEY is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "3001"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
