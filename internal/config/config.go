package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Storage        StorageConfig
	Database       DatabaseConfig
	MySQL          MySQLConfig
	Matching       MatchingConfig
	Debounce       DebounceConfig
	CrossEmbedding CrossEmbeddingConfig
	Scheduler      SchedulerConfig
	Log            LogConfig
	Web            WebConfig
}

type StorageConfig struct {
	Backend string // file, postgres or mysql (default file)
	DataDir string // Directory of the file backend (default ./data)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MySQLConfig struct {
	DSN string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/rollcall?parseTime=true
}

type MatchingConfig struct {
	Threshold                float64 // Stage 1 Euclidean distance threshold (default 0.6)
	CrossValidationThreshold float64 // Stage 2 cosine similarity veto threshold (default 0.5)
	MaxPerIdentity           int     // Enrollment cap per identity (default 10)
	DuplicateCheck           bool    // Warn when a new sample is close to another identity (default true)
}

type DebounceConfig struct {
	AcceptCooldown  time.Duration // Minimum gap between ledger writes of one identity (default 2s)
	UnknownCooldown time.Duration // Minimum gap between counted unknown faces (default 3s)
}

type CrossEmbeddingConfig struct {
	URL      string // Embedding service URL; empty disables cross-validation
	Model    string // Model name the cross-validation samples are stored under
	CropSize int    // Edge of the square face crop (default 150)
}

type SchedulerConfig struct {
	SweepInterval time.Duration // Session expiry sweep interval; 0 disables the sweeper
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text, json or pretty (default text)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string // Comma separated CORS origins
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float. Returns the default value if unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a Go duration ("2s", "500ms"). Zero is allowed.
// Returns the default value if unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: strings.ToLower(envString("STORAGE_BACKEND", "file")),
			DataDir: envString("DATA_DIR", "./data"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MySQL: MySQLConfig{
			DSN: os.Getenv("MYSQL_DSN"),
		},
		Matching: MatchingConfig{
			Threshold:                envFloat("MATCH_THRESHOLD", 0.6),
			CrossValidationThreshold: envFloat("CROSS_VALIDATION_THRESHOLD", 0.5),
			MaxPerIdentity:           envInt("MAX_EMBEDDINGS_PER_IDENTITY", 10),
			DuplicateCheck:           envBool("DUPLICATE_CHECK", true),
		},
		Debounce: DebounceConfig{
			AcceptCooldown:  envDuration("ACCEPT_COOLDOWN", 2*time.Second),
			UnknownCooldown: envDuration("UNKNOWN_COOLDOWN", 3*time.Second),
		},
		CrossEmbedding: CrossEmbeddingConfig{
			URL:      os.Getenv("CROSS_EMBEDDING_URL"),
			Model:    envString("CROSS_EMBEDDING_MODEL", "cross"),
			CropSize: envInt("CROSS_EMBEDDING_CROP_SIZE", 150),
		},
		Scheduler: SchedulerConfig{
			SweepInterval: envDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// StorageDSN returns the connection string of the configured backend.
func (c *Config) StorageDSN() string {
	switch c.Storage.Backend {
	case "postgres":
		return c.Database.URL
	case "mysql":
		return c.MySQL.DSN
	default:
		return c.Storage.DataDir
	}
}

// CrossValidationEnabled reports whether a cross-validation embedding service is configured.
func (c *Config) CrossValidationEnabled() bool {
	return c.CrossEmbedding.URL != ""
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "file":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the file backend"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q (expected file, postgres or mysql)", c.Storage.Backend))
	}

	if c.Matching.CrossValidationThreshold > 1 {
		errs = append(errs, fmt.Errorf("CROSS_VALIDATION_THRESHOLD must be at most 1, got %.3f", c.Matching.CrossValidationThreshold))
	}
	if c.CrossValidationEnabled() && c.CrossEmbedding.Model == "primary" {
		errs = append(errs, errors.New(`CROSS_EMBEDDING_MODEL must differ from "primary"`))
	}

	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q (expected text, json or pretty)", c.Log.Format))
	}

	return errors.Join(errs...)
}
