package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"HOST", "PORT", "REQUEST_TIMEOUT", "GRAYSCALE_THRESHOLD", "GRAYSCALE_RATIO",
		"ORACLE_AGREEMENT_ODDS", "CORS_ALLOWED_ORIGINS", "AZURE_STORAGE_ACCOUNT",
		"AZURE_STORAGE_KEY", "AZURE_STORAGE_CONTAINER", "CONFUSION_MATRIX_PATH",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected defaults to load, got %v", err)
	}

	if cfg.ServerAddress() != "0.0.0.0:5000" {
		t.Errorf("Expected 0.0.0.0:5000, got %s", cfg.ServerAddress())
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected 30s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.GrayscaleThreshold != 10 || cfg.GrayscaleRatio != 0.5 {
		t.Errorf("Expected grayscale defaults 10/0.5, got %g/%g", cfg.GrayscaleThreshold, cfg.GrayscaleRatio)
	}
	if cfg.OracleAgreementOdds != 0.75 {
		t.Errorf("Expected odds 0.75, got %g", cfg.OracleAgreementOdds)
	}
	if cfg.ConfusionMatrixPath != "data/confusion_matrix.bin" {
		t.Errorf("Unexpected matrix path %s", cfg.ConfusionMatrixPath)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PublishingEnabled() {
		t.Error("Expected publishing to be disabled without Azure settings")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("GRAYSCALE_THRESHOLD", "12.5")
	t.Setenv("ORACLE_AGREEMENT_ODDS", "0.9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "a2V5")
	t.Setenv("AZURE_STORAGE_CONTAINER", "reports")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("Expected port 8081, got %s", cfg.Port)
	}
	if cfg.GrayscaleThreshold != 12.5 {
		t.Errorf("Expected threshold 12.5, got %g", cfg.GrayscaleThreshold)
	}
	if cfg.OracleAgreementOdds != 0.9 {
		t.Errorf("Expected odds 0.9, got %g", cfg.OracleAgreementOdds)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.PublishingEnabled() {
		t.Error("Expected publishing to be enabled")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value, contains string
	}{
		{"PORT", "99999", "invalid PORT"},
		{"PORT", "abc", "invalid PORT"},
		{"GRAYSCALE_THRESHOLD", "0", "GRAYSCALE_THRESHOLD"},
		{"GRAYSCALE_RATIO", "1.5", "GRAYSCALE_RATIO"},
		{"ORACLE_AGREEMENT_ODDS", "-0.1", "ORACLE_AGREEMENT_ODDS"},
		{"MAX_REQUEST_BODY_SIZE", "-1", "MAX_REQUEST_BODY_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			if err == nil {
				t.Fatalf("Expected error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error to mention %s, got %v", tt.contains, err)
			}
		})
	}
}
