// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the realtime gateway
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort   string
	BasePath   string
	Env        string
	APIBaseURL string
}

// AuthConfig holds JWT verification configuration. The token issuer is an
// external identity provider; only verification against its JWKS is handled here.
type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Required bool
}

// DatabaseConfig holds database connection configuration. The store itself is
// an external collaborator; the gateway only pings it for readiness.
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RateLimitConfig bounds per-user event throughput over the websocket.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort:   getEnv("HTTP_PORT", "8080"),
		BasePath:   normalizeBasePath(getEnv("BASE_PATH", "/api")),
		Env:        getEnv("ENVIRONMENT", "development"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api"),
	}

	issuer := getEnv("JWT_ISSUER", "")
	jwksURL := getEnv("JWKS_URL", "")
	if jwksURL == "" && issuer != "" {
		jwksURL = strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
	}
	cfg.Auth = AuthConfig{
		Issuer:   issuer,
		Audience: getEnv("JWT_AUDIENCE", ""),
		JWKSURL:  jwksURL,
		Required: getEnvBool("AUTH_REQUIRED", false),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", ""),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", ""),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", ""),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	rpm, _ := strconv.Atoi(getEnv("WS_RATE_LIMIT_RPM", "120"))
	cfg.RateLimit = RateLimitConfig{
		RequestsPerMinute: rpm,
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("BASE_PATH must start with '/'")
	}

	// Auth is optional as a whole; when strict mode is on, verification must
	// actually be possible.
	if c.Auth.Required && c.Auth.JWKSURL == "" {
		return fmt.Errorf("AUTH_REQUIRED needs JWT_ISSUER or JWKS_URL to be set")
	}

	// Database is optional as a whole; when a host is given the rest must be usable.
	if c.Database.Host != "" {
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required when DB_HOST is set")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required when DB_HOST is set")
		}
	}

	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("WS_RATE_LIMIT_RPM must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// HasDatabase reports whether a document store is configured at all.
func (c *Config) HasDatabase() bool {
	return c.Database.Host != ""
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// normalizeBasePath strips a trailing slash so route mounting stays predictable.
func normalizeBasePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable with a fallback default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
