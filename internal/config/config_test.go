package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "LLM_PROVIDER", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "SESSION_BACKEND", "SESSION_IDLE_TTL", "CORS_ALLOWED_ORIGINS", "CORS_ALLOWED_METHODS", "CORS_MAX_AGE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected openai provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.LLMMaxTokens != 800 {
		t.Fatalf("expected 800 max tokens, got %d", cfg.LLMMaxTokens)
	}
	if cfg.LLMTemperature != 0.6 {
		t.Fatalf("expected temperature 0.6, got %v", cfg.LLMTemperature)
	}
	if cfg.SessionIdleTTL != 24*time.Hour {
		t.Fatalf("expected 24h idle ttl, got %s", cfg.SessionIdleTTL)
	}
	if cfg.UsesRedisSessions() {
		t.Fatal("expected memory sessions by default")
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedMethods != nil || cfg.CORSMaxAge != 10*time.Minute {
		t.Fatalf("unexpected cors defaults: %v %s", cfg.CORSAllowedMethods, cfg.CORSMaxAge)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("LLM_TEMPERATURE", "0.3")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SESSION_MAX_ACTIVE", "50")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CORS_ALLOWED_METHODS", "GET,POST")
	t.Setenv("CORS_ALLOWED_HEADERS", "Authorization")
	t.Setenv("CORS_MAX_AGE", "1h")
	t.Setenv("CHAT_RATE_BURST", "not-a-number")

	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected port/env: %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.LLMTemperature != 0.3 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.LLMTimeout)
	}
	if !cfg.UsesRedisSessions() {
		t.Fatal("expected redis sessions")
	}
	if cfg.SessionMaxActive != 50 {
		t.Fatalf("expected max active 50, got %d", cfg.SessionMaxActive)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.CORSAllowedMethods) != 2 || cfg.CORSAllowedMethods[1] != "POST" || len(cfg.CORSAllowedHeaders) != 1 {
		t.Fatalf("unexpected cors lists: %v %v", cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	}
	if cfg.CORSMaxAge != time.Hour {
		t.Fatalf("expected cors max age override, got %s", cfg.CORSMaxAge)
	}
	if cfg.ChatRateBurst != 5 {
		t.Fatalf("expected fallback burst on bad value, got %d", cfg.ChatRateBurst)
	}
}
