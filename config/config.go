package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	DatabasePath    string
	OpenAIKey       string
	OpenAIBaseURL   string // optional, for OpenAI-compatible gateways
	LLMModel        string
	LLMTimeout      time.Duration
	HistoryLimit    int
	JWTSecret       string // HS256 shared secret
	JWKSURL         string // RS256 via JWKS; takes precedence over JWTSecret
	JWTAudience     string
	JWTIssuer       string
	RedisURL        string
	IdempotencyTTL  time.Duration
	LogLevel        string
	LogFormat       string // text, json
	OTelExporter    string // none, stdout, otlp
	OTelEndpoint    string // host:port of an OTLP/HTTP collector
	MaintenanceCron string // "off" disables database maintenance
}

func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error if no .env

	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		DatabasePath:    envOr("DATABASE_PATH", "./taskchat.db"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		LLMModel:        envOr("LLM_MODEL", "gpt-4o"),
		JWTSecret:       os.Getenv("AUTH_JWT_SECRET"),
		JWKSURL:         os.Getenv("AUTH_JWKS_URL"),
		JWTAudience:     os.Getenv("AUTH_AUDIENCE"),
		JWTIssuer:       os.Getenv("AUTH_ISSUER"),
		RedisURL:        os.Getenv("REDIS_URL"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "text"),
		OTelExporter:    envOr("OTEL_EXPORTER", "none"),
		OTelEndpoint:    envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		MaintenanceCron: envOr("DB_MAINTENANCE_CRON", "@daily"),
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.LogLevel = "debug"
	}

	var err error
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = envInt("HISTORY_LIMIT", 10); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that would leave the server unable to serve a chat turn.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		errs = append(errs, errors.New("one of AUTH_JWT_SECRET or AUTH_JWKS_URL is required"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must be greater than zero"))
	}
	switch c.OTelExporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("unsupported OTEL_EXPORTER %q", c.OTelExporter))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}
