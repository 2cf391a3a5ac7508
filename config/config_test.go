package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "DATABASE_PATH", "LLM_MODEL", "LLM_TIMEOUT", "HISTORY_LIMIT", "IDEMPOTENCY_TTL", "DEBUG", "LOG_LEVEL", "DB_MAINTENANCE_CRON"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected listen addr %q, got %q", ":8080", cfg.ListenAddr)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("expected history limit 10, got %d", cfg.HistoryLimit)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Errorf("expected LLM timeout 60s, got %s", cfg.LLMTimeout)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected idempotency TTL 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
	if cfg.MaintenanceCron != "@daily" {
		t.Errorf("expected maintenance cron @daily, got %q", cfg.MaintenanceCron)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "4")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HistoryLimit != 4 {
		t.Errorf("expected history limit 4, got %d", cfg.HistoryLimit)
	}
	if cfg.LLMTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.LLMTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected DEBUG to force debug level, got %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LLM_TIMEOUT", "soon"},
		{"LLM_TIMEOUT", "-1s"},
		{"IDEMPOTENCY_TTL", "0s"},
		{"HISTORY_LIMIT", "ten"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error mentioning %s, got %v", tt.key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{OpenAIKey: "sk-test", JWTSecret: "s", HistoryLimit: 10, OTelExporter: "none"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := Config{HistoryLimit: 0, OTelExporter: "zipkin"}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"OPENAI_API_KEY", "AUTH_JWT_SECRET", "HISTORY_LIMIT", "OTEL_EXPORTER"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}
