package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	ModelPath          string
	ModelMetadataPath  string
	OnnxRuntimeLibPath string

	ConfusionMatrixPath string
	HistoryDBPath       string

	GrayscaleThreshold  float64
	GrayscaleRatio      float64
	OracleAgreementOdds float64

	CORSAllowedOrigins []string

	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// PublishingEnabled reports whether all Azure settings are present.
func (c *Config) PublishingEnabled() bool {
	return c.AzureAccount != "" && c.AzureKey != "" && c.AzureContainer != ""
}

// LoadFromEnv reads a .env file from the working directory when one exists,
// then builds the configuration from the process environment.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                getEnvOrDefault("PORT", "5000"),
		RequestTimeout:      parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:   parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		MaxRequestBodySize:  parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		ModelPath:           getEnvOrDefault("MODEL_PATH", "models/model.onnx"),
		ModelMetadataPath:   getEnvOrDefault("MODEL_METADATA_PATH", "models/model_metadata.json"),
		OnnxRuntimeLibPath:  strings.TrimSpace(os.Getenv("ONNXRUNTIME_LIB_PATH")),
		ConfusionMatrixPath: getEnvOrDefault("CONFUSION_MATRIX_PATH", "data/confusion_matrix.bin"),
		HistoryDBPath:       getEnvOrDefault("HISTORY_DB_PATH", "data/predictions.db"),
		GrayscaleThreshold:  parseFloatOrDefault("GRAYSCALE_THRESHOLD", 10),
		GrayscaleRatio:      parseFloatOrDefault("GRAYSCALE_RATIO", 0.5),
		OracleAgreementOdds: parseFloatOrDefault("ORACLE_AGREEMENT_ODDS", 0.75),
		CORSAllowedOrigins:  parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AzureAccount:        strings.TrimSpace(os.Getenv("AZURE_STORAGE_ACCOUNT")),
		AzureKey:            strings.TrimSpace(os.Getenv("AZURE_STORAGE_KEY")),
		AzureContainer:      strings.TrimSpace(os.Getenv("AZURE_STORAGE_CONTAINER")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			c.RequestTimeout, c.ImageFetchTimeout)
	}
	if c.GrayscaleThreshold <= 0 || c.GrayscaleThreshold > 255 {
		return fmt.Errorf("GRAYSCALE_THRESHOLD must be in (0, 255] (got %g)", c.GrayscaleThreshold)
	}
	if c.GrayscaleRatio < 0 || c.GrayscaleRatio >= 1 {
		return fmt.Errorf("GRAYSCALE_RATIO must be in [0, 1) (got %g)", c.GrayscaleRatio)
	}
	if c.OracleAgreementOdds < 0 || c.OracleAgreementOdds > 1 {
		return fmt.Errorf("ORACLE_AGREEMENT_ODDS must be in [0, 1] (got %g)", c.OracleAgreementOdds)
	}
	if c.ConfusionMatrixPath == "" {
		return fmt.Errorf("CONFUSION_MATRIX_PATH must not be empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
