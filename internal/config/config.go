package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Database configuration
	DatabasePath string

	// Blob store configuration
	BlobBackend  string
	BlobRoot     string
	UploadBucket string

	// Worker configuration
	WorkerID         string
	BatchSize        int
	PollInterval     time.Duration
	JobTimeout       time.Duration
	StaleLockTimeout time.Duration
	MaxAttempts      int
	PreviewMaxPoints int

	// Internal API configuration
	InternalAPIKey string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if there is one. Variables already set in the
// environment win over the file. It fails fast on missing or invalid values.
func Load() (*Config, error) {
	return load(true)
}

// LoadCLI is Load without the INTERNAL_API_KEY requirement; the CLI talks to
// the database directly rather than through the HTTP API.
func LoadCLI() (*Config, error) {
	return load(false)
}

func load(requireAPIKey bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:           getEnv("HOST", "localhost"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data.db"),
		BlobBackend:    getEnv("BLOB_BACKEND", "fs"),
		BlobRoot:       getEnv("BLOB_ROOT", "./blobs"),
		UploadBucket:   getEnv("UPLOAD_BUCKET", "uploads"),
		WorkerID:       getEnv("WORKER_ID", defaultWorkerID()),
		InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsHost:    getEnv("METRICS_HOST", "localhost"),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 4102); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", 3); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = getEnvInt("MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.PreviewMaxPoints, err = getEnvInt("PREVIEW_MAX_POINTS", 1500); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = getEnvInt("METRICS_PORT", 9102); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleLockTimeout, err = getEnvDuration("STALE_LOCK_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MetricsEnabled, err = getEnvBool("METRICS_ENABLED", true); err != nil {
		return nil, err
	}

	if requireAPIKey && cfg.InternalAPIKey == "" {
		return nil, errors.New("INTERNAL_API_KEY is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("PORT must be between 1 and 65535")
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return errors.New("METRICS_PORT must be between 1 and 65535")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	switch c.BlobBackend {
	case "fs", "badger":
	default:
		return errors.New("BLOB_BACKEND must be one of: fs, badger")
	}

	if c.BatchSize < 1 {
		return errors.New("BATCH_SIZE must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("MAX_ATTEMPTS must be at least 1")
	}
	if c.PreviewMaxPoints < 2 {
		return errors.New("PREVIEW_MAX_POINTS must be at least 2")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.JobTimeout <= 0 {
		return errors.New("JOB_TIMEOUT must be positive")
	}
	if c.StaleLockTimeout <= c.JobTimeout {
		return errors.New("STALE_LOCK_TIMEOUT must be longer than JOB_TIMEOUT")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return value, nil
}

// getEnvDuration accepts Go durations ("90s", "2m") or a plain number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration", key)
	}
	return value, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return value, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
