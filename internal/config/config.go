// Package config provides configuration management for Lethe.
// It loads settings from environment variables with the LETHE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the Lethe application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Security SecurityConfig
	Rules    RulesConfig
	Export   ExportConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for the sqlite engine (default: ./data)
	PostgresDSN   string // Connection string for the postgres engine
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string  // Security mode: development, production (default: development)
	APIToken     string  // API authentication token
	RateLimit    float64 // Requests per second, shared across clients (default: 10)
	RateBurst    int     // Burst allowance for the rate limiter (default: 20)
}

// RulesConfig locates the ruleset and sets evaluation defaults.
type RulesConfig struct {
	RulesetPath string // Path to the YAML ruleset file (default: ./rules.yaml)
	Event       string // Default context event applied when a run names none
}

// ExportConfig contains snapshot export configuration.
type ExportConfig struct {
	ExportPath string // Directory for before/after/audit CSV snapshots (default: ./exports)
	ExportKeep int    // Run directories to retain, 0 keeps all (default: 20)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LETHE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("LETHE_PORT", 6464),
			Host: getEnv("LETHE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("LETHE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("LETHE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("LETHE_POSTGRES_DSN", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LETHE_SECURITY_MODE", "development"),
			APIToken:     getEnv("LETHE_API_TOKEN", ""),
			RateLimit:    getEnvFloat("LETHE_RATE_LIMIT", 10),
			RateBurst:    getEnvInt("LETHE_RATE_BURST", 20),
		},
		Rules: RulesConfig{
			RulesetPath: getEnv("LETHE_RULESET", "./rules.yaml"),
			Event:       getEnv("LETHE_EVENT", ""),
		},
		Export: ExportConfig{
			ExportPath: getEnv("LETHE_EXPORT_PATH", "./exports"),
			ExportKeep: getEnvInt("LETHE_EXPORT_KEEP", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the rest of the system cannot act on.
func (c *Config) validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: LETHE_POSTGRES_DSN is required when LETHE_STORAGE_ENGINE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}

	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: LETHE_API_TOKEN is required in production mode")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
