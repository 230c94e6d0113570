// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	DocDB     DocDBConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Lock      LockConfig
	History   HistoryConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	GinMode     string
	CORSOrigins string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds Redis cache configuration.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string
}

// AuthConfig holds authentication and secrets configuration.
type AuthConfig struct {
	JWTSecret     string
	EncryptionKey string
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled      bool
	DefaultLimit int
}

// LockConfig holds distributed lock configuration.
type LockConfig struct {
	TTL        time.Duration
	RetryTimes int
	RetryDelay time.Duration
}

// HistoryConfig holds conversation history cache configuration.
type HistoryConfig struct {
	MaxTurns int
	TTL      time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			GinMode:     getEnv("GIN_MODE", "debug"),
			CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Cache: CacheConfig{
			Type:     getEnv("CACHE_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DocDB: DocDBConfig{
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "chatforge"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET_KEY", ""),
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvAsBool("RATE_LIMIT_ENABLED", true),
			DefaultLimit: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Lock: LockConfig{
			TTL:        time.Duration(getEnvAsInt("LOCK_TTL_SECONDS", 60)) * time.Second,
			RetryTimes: getEnvAsInt("LOCK_RETRY_TIMES", 5),
			RetryDelay: time.Duration(getEnvAsInt("LOCK_RETRY_DELAY_MS", 200)) * time.Millisecond,
		},
		History: HistoryConfig{
			MaxTurns: getEnvAsInt("HISTORY_MAX_TURNS", 20),
			TTL:      time.Duration(getEnvAsInt("HISTORY_TTL_SECONDS", 1800)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
