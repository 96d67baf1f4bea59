package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	// Set only required env vars
	setTestEnv(t, map[string]string{
		"INTERNAL_API_KEY": "test_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4102 {
		t.Errorf("Expected default port 4102, got %d", config.Port)
	}
	if config.DatabasePath != "./data.db" {
		t.Errorf("Expected default database path './data.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.BlobBackend != "fs" {
		t.Errorf("Expected default blob backend 'fs', got %s", config.BlobBackend)
	}
	if config.UploadBucket != "uploads" {
		t.Errorf("Expected default upload bucket 'uploads', got %s", config.UploadBucket)
	}
	if config.BatchSize != 3 {
		t.Errorf("Expected default batch size 3, got %d", config.BatchSize)
	}
	if config.PollInterval != 15*time.Second {
		t.Errorf("Expected default poll interval 15s, got %s", config.PollInterval)
	}
	if config.JobTimeout != 2*time.Minute {
		t.Errorf("Expected default job timeout 2m, got %s", config.JobTimeout)
	}
	if config.StaleLockTimeout != 15*time.Minute {
		t.Errorf("Expected default stale lock timeout 15m, got %s", config.StaleLockTimeout)
	}
	if config.MaxAttempts != 5 {
		t.Errorf("Expected default max attempts 5, got %d", config.MaxAttempts)
	}
	if config.PreviewMaxPoints != 1500 {
		t.Errorf("Expected default preview max points 1500, got %d", config.PreviewMaxPoints)
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics to be enabled by default")
	}
	if config.MetricsPort != 9102 {
		t.Errorf("Expected default metrics port 9102, got %d", config.MetricsPort)
	}
	if config.WorkerID == "" {
		t.Error("Expected a generated worker ID")
	}

	if config.InternalAPIKey != "test_api_key" {
		t.Errorf("Expected INTERNAL_API_KEY 'test_api_key', got %s", config.InternalAPIKey)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":               "0.0.0.0",
		"PORT":               "8080",
		"DATABASE_PATH":      "/tmp/test.db",
		"INTERNAL_API_KEY":   "custom_api_key",
		"LOG_LEVEL":          "debug",
		"BLOB_BACKEND":       "badger",
		"BLOB_ROOT":          "/tmp/blobs",
		"WORKER_ID":          "worker-a",
		"BATCH_SIZE":         "10",
		"POLL_INTERVAL":      "5",
		"JOB_TIMEOUT":        "90s",
		"STALE_LOCK_TIMEOUT": "10m",
		"MAX_ATTEMPTS":       "7",
		"PREVIEW_MAX_POINTS": "500",
		"METRICS_ENABLED":    "false",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
	if config.BlobBackend != "badger" || config.BlobRoot != "/tmp/blobs" {
		t.Errorf("Expected badger blob store at /tmp/blobs, got %s at %s", config.BlobBackend, config.BlobRoot)
	}
	if config.WorkerID != "worker-a" {
		t.Errorf("Expected worker ID 'worker-a', got %s", config.WorkerID)
	}
	if config.BatchSize != 10 {
		t.Errorf("Expected batch size 10, got %d", config.BatchSize)
	}
	if config.PollInterval != 5*time.Second {
		t.Errorf("Expected poll interval 5s from plain seconds, got %s", config.PollInterval)
	}
	if config.JobTimeout != 90*time.Second {
		t.Errorf("Expected job timeout 90s, got %s", config.JobTimeout)
	}
	if config.StaleLockTimeout != 10*time.Minute {
		t.Errorf("Expected stale lock timeout 10m, got %s", config.StaleLockTimeout)
	}
	if config.MaxAttempts != 7 {
		t.Errorf("Expected max attempts 7, got %d", config.MaxAttempts)
	}
	if config.PreviewMaxPoints != 500 {
		t.Errorf("Expected preview max points 500, got %d", config.PreviewMaxPoints)
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics to be disabled")
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Create a temporary .env file
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `# Test .env file
HOST=192.168.1.1
PORT=9000
DATABASE_PATH=/custom/path/data.db
INTERNAL_API_KEY=env_file_api_key
LOG_LEVEL=warn
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	chdir(t, tmpDir)
	clearTestEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "192.168.1.1" {
		t.Errorf("Expected host '192.168.1.1' from .env, got %s", config.Host)
	}
	if config.Port != 9000 {
		t.Errorf("Expected port 9000 from .env, got %d", config.Port)
	}
	if config.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn' from .env, got %s", config.LogLevel)
	}
	if config.InternalAPIKey != "env_file_api_key" {
		t.Errorf("Expected API key 'env_file_api_key' from .env, got %s", config.InternalAPIKey)
	}
}

func TestEnvVarsPrecedenceOverEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `HOST=from_file
PORT=9000
INTERNAL_API_KEY=file_api_key
BATCH_SIZE=8
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	chdir(t, tmpDir)

	// Set some env vars that should override .env file
	setTestEnv(t, map[string]string{
		"HOST":             "from_env_var",
		"INTERNAL_API_KEY": "env_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "from_env_var" {
		t.Errorf("Expected host 'from_env_var' from env var, got %s", config.Host)
	}
	if config.InternalAPIKey != "env_api_key" {
		t.Errorf("Expected API key 'env_api_key' from env var, got %s", config.InternalAPIKey)
	}

	// Verify .env file values used when env var not set
	if config.Port != 9000 {
		t.Errorf("Expected port 9000 from .env file, got %d", config.Port)
	}
	if config.BatchSize != 8 {
		t.Errorf("Expected batch size 8 from .env file, got %d", config.BatchSize)
	}
}

func TestValidationMissingAPIKey(t *testing.T) {
	setTestEnv(t, map[string]string{})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected validation error for missing INTERNAL_API_KEY")
	}
	if err.Error() != "INTERNAL_API_KEY is required" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestLoadCLIWithoutAPIKey(t *testing.T) {
	setTestEnv(t, map[string]string{})

	config, err := LoadCLI()
	if err != nil {
		t.Fatalf("Failed to load CLI config: %v", err)
	}
	if config.InternalAPIKey != "" {
		t.Errorf("Expected empty API key, got %s", config.InternalAPIKey)
	}
}

func TestValidationInvalidPort(t *testing.T) {
	tests := []struct {
		port    string
		wantErr bool
	}{
		{"0", true},
		{"1", false},
		{"80", false},
		{"4102", false},
		{"65535", false},
		{"65536", true},
		{"99999", true},
		{"abc", true},
	}

	for _, tt := range tests {
		t.Run("port_"+tt.port, func(t *testing.T) {
			setTestEnv(t, map[string]string{
				"PORT":             tt.port,
				"INTERNAL_API_KEY": "test_api_key",
			})

			_, err := Load()
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for port %s, but got none", tt.port)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error for port %s, but got: %v", tt.port, err)
			}
		})
	}
}

func TestValidationInvalidLogLevel(t *testing.T) {
	setTestEnv(t, map[string]string{
		"LOG_LEVEL":        "invalid",
		"INTERNAL_API_KEY": "test_api_key",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected validation error for invalid LOG_LEVEL")
	}
	if err.Error() != "LOG_LEVEL must be one of: debug, info, warn, error" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidationValidLogLevels(t *testing.T) {
	logLevels := []string{"debug", "info", "warn", "error"}

	for _, level := range logLevels {
		t.Run("log_level_"+level, func(t *testing.T) {
			setTestEnv(t, map[string]string{
				"LOG_LEVEL":        level,
				"INTERNAL_API_KEY": "test_api_key",
			})

			config, err := Load()
			if err != nil {
				t.Fatalf("Expected no error for log level %s, but got: %v", level, err)
			}
			if config.LogLevel != level {
				t.Errorf("Expected log level %s, got %s", level, config.LogLevel)
			}
		})
	}
}

func TestValidationWorkerSettings(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{"unknown blob backend", map[string]string{"BLOB_BACKEND": "s3"}, "BLOB_BACKEND"},
		{"zero batch size", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"zero max attempts", map[string]string{"MAX_ATTEMPTS": "0"}, "MAX_ATTEMPTS"},
		{"tiny preview", map[string]string{"PREVIEW_MAX_POINTS": "1"}, "PREVIEW_MAX_POINTS"},
		{"bad duration", map[string]string{"POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"negative job timeout", map[string]string{"JOB_TIMEOUT": "-1"}, "JOB_TIMEOUT"},
		{"lock timeout not above job timeout", map[string]string{"JOB_TIMEOUT": "5m", "STALE_LOCK_TIMEOUT": "5m"}, "STALE_LOCK_TIMEOUT"},
		{"bad bool", map[string]string{"METRICS_ENABLED": "maybe"}, "METRICS_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := map[string]string{"INTERNAL_API_KEY": "test_api_key"}
			for k, v := range tt.vars {
				vars[k] = v
			}
			setTestEnv(t, vars)

			_, err := Load()
			if err == nil {
				t.Fatalf("Expected error mentioning %s, got none", tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %s, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnvFileWithQuotes(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `# Comment line
INTERNAL_API_KEY="quoted_key"
WORKER_ID='single_quoted_worker'

HOST=127.0.0.1
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	chdir(t, tmpDir)
	clearTestEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config with quotes: %v", err)
	}

	// Values should have quotes removed
	if config.InternalAPIKey != "quoted_key" {
		t.Errorf("Expected API key 'quoted_key', got %s", config.InternalAPIKey)
	}
	if config.WorkerID != "single_quoted_worker" {
		t.Errorf("Expected worker ID 'single_quoted_worker', got %s", config.WorkerID)
	}
	if config.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1', got %s", config.Host)
	}
}

// Helper function to set test environment variables and clean up after test
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	// Clear all relevant env vars first
	clearTestEnv(t)

	for key, value := range vars {
		os.Setenv(key, value)
	}
}

// Helper function to clear all config-related environment variables. Values
// loaded from a .env file land in the process environment too, so they are
// unset again when the test finishes.
func clearTestEnv(t *testing.T) {
	t.Helper()

	for _, key := range envVars {
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for _, key := range envVars {
			os.Unsetenv(key)
		}
	})
}

var envVars = []string{
	"HOST", "PORT", "DATABASE_PATH",
	"BLOB_BACKEND", "BLOB_ROOT", "UPLOAD_BUCKET",
	"WORKER_ID", "BATCH_SIZE", "POLL_INTERVAL", "JOB_TIMEOUT",
	"STALE_LOCK_TIMEOUT", "MAX_ATTEMPTS", "PREVIEW_MAX_POINTS",
	"INTERNAL_API_KEY", "LOG_LEVEL",
	"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT",
}

func chdir(t *testing.T, dir string) {
	t.Helper()

	oldDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(oldDir)
	})
}
