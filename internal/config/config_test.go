package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"STORAGE_BACKEND", "DATA_DIR", "MATCH_THRESHOLD", "CROSS_VALIDATION_THRESHOLD",
		"MAX_EMBEDDINGS_PER_IDENTITY", "ACCEPT_COOLDOWN", "UNKNOWN_COOLDOWN",
		"CROSS_EMBEDDING_URL", "CROSS_EMBEDDING_MODEL", "LOG_FORMAT", "WEB_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("Matching.Threshold = %v, want 0.6", cfg.Matching.Threshold)
	}
	if cfg.Matching.CrossValidationThreshold != 0.5 {
		t.Errorf("Matching.CrossValidationThreshold = %v, want 0.5", cfg.Matching.CrossValidationThreshold)
	}
	if cfg.Matching.MaxPerIdentity != 10 {
		t.Errorf("Matching.MaxPerIdentity = %d, want 10", cfg.Matching.MaxPerIdentity)
	}
	if cfg.Debounce.AcceptCooldown != 2*time.Second || cfg.Debounce.UnknownCooldown != 3*time.Second {
		t.Errorf("Debounce = %+v, want 2s/3s", cfg.Debounce)
	}
	if cfg.CrossValidationEnabled() {
		t.Error("cross-validation should be disabled without CROSS_EMBEDDING_URL")
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/rollcall")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("ACCEPT_COOLDOWN", "500ms")
	t.Setenv("DUPLICATE_CHECK", "false")
	t.Setenv("CROSS_EMBEDDING_URL", "http://embed:8000")

	cfg := Load()

	if cfg.Storage.Backend != "postgres" {
		t.Errorf("Storage.Backend = %q, want postgres", cfg.Storage.Backend)
	}
	if cfg.StorageDSN() != "postgres://localhost/rollcall" {
		t.Errorf("StorageDSN() = %q", cfg.StorageDSN())
	}
	if cfg.Matching.Threshold != 0.45 {
		t.Errorf("Matching.Threshold = %v, want 0.45", cfg.Matching.Threshold)
	}
	if cfg.Debounce.AcceptCooldown != 500*time.Millisecond {
		t.Errorf("AcceptCooldown = %v, want 500ms", cfg.Debounce.AcceptCooldown)
	}
	if cfg.Matching.DuplicateCheck {
		t.Error("DuplicateCheck should be false")
	}
	if !cfg.CrossValidationEnabled() {
		t.Error("cross-validation should be enabled")
	}
}

func TestEnvHelpers_InvalidFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_NEG_INT", "-3")
	t.Setenv("TEST_FLOAT", "zero")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_BOOL", "maybe")

	if got := envInt("TEST_INT", 7); got != 7 {
		t.Errorf("envInt(invalid) = %d, want 7", got)
	}
	if got := envInt("TEST_NEG_INT", 7); got != 7 {
		t.Errorf("envInt(negative) = %d, want 7", got)
	}
	if got := envFloat("TEST_FLOAT", 0.6); got != 0.6 {
		t.Errorf("envFloat(invalid) = %v, want 0.6", got)
	}
	if got := envDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("envDuration(invalid) = %v, want 1s", got)
	}
	if got := envBool("TEST_BOOL", true); !got {
		t.Error("envBool(invalid) should fall back to true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "unknown STORAGE_BACKEND"},
		{"postgres without url", func(c *Config) { c.Storage.Backend = "postgres"; c.Database.URL = "" }, "DATABASE_URL"},
		{"mysql without dsn", func(c *Config) { c.Storage.Backend = "mysql" }, "MYSQL_DSN"},
		{"cross threshold above 1", func(c *Config) { c.Matching.CrossValidationThreshold = 1.5 }, "CROSS_VALIDATION_THRESHOLD"},
		{"cross model named primary", func(c *Config) {
			c.CrossEmbedding.URL = "http://x"
			c.CrossEmbedding.Model = "primary"
		}, "CROSS_EMBEDDING_MODEL"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Storage:        StorageConfig{Backend: "file", DataDir: "/tmp/data"},
				Matching:       MatchingConfig{Threshold: 0.6, CrossValidationThreshold: 0.5, MaxPerIdentity: 10},
				CrossEmbedding: CrossEmbeddingConfig{Model: "cross"},
				Log:            LogConfig{Level: "info", Format: "text"},
			}
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
