package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"callhub-backend/pkg/constants"
)

// Config holds all configuration for the signaling service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Signaling SignalingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Audience string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// SignalingConfig holds call coordination and WebSocket settings
type SignalingConfig struct {
	RingTimeout           time.Duration
	ProfileRefreshTimeout time.Duration
	ProfileCacheTTL       time.Duration
	PresenceTTL           time.Duration
	MaxConnections        int
	SendBuffer            int
	AllowedOrigins        []string
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("PORT", 8085),
			Environment: getEnv("ENV", "development"),
			ServiceName: getEnv("SERVICE_NAME", "signaling-service"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 26257),
			User:     getEnv("DB_USER", "root"),
			Password: getSecret("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "callhub"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getSecret("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			Timeout:  time.Duration(getEnvAsInt("REDIS_TIMEOUT", 5)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:   getSecret("JWT_SECRET", ""),
			Audience: getEnv("JWT_AUDIENCE", constants.TokenAudience),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "json"),
			Output:   getEnv("LOG_OUTPUT", "stdout"),
			FilePath: getEnv("LOG_FILE_PATH", "/logs/app.log"),
		},
		Signaling: SignalingConfig{
			RingTimeout:           getEnvAsDuration("RING_TIMEOUT", constants.RingTimeout),
			ProfileRefreshTimeout: getEnvAsDuration("PROFILE_REFRESH_TIMEOUT", constants.ProfileRefreshTimeout),
			ProfileCacheTTL:       getEnvAsDuration("PROFILE_CACHE_TTL", constants.ProfileCacheTTL),
			PresenceTTL:           getEnvAsDuration("PRESENCE_TTL", constants.PresenceTTL),
			MaxConnections:        getEnvAsInt("WS_MAX_SIGNALING_CONNECTIONS", constants.DefaultMaxConnections),
			SendBuffer:            getEnvAsInt("WS_SEND_BUFFER", constants.DefaultSendBuffer),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:8080",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:8080",
			}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < constants.MinJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters in production", constants.MinJWTSecretLength)
		}
	}

	if c.Signaling.RingTimeout <= 0 {
		return fmt.Errorf("RING_TIMEOUT must be positive, got %s", c.Signaling.RingTimeout)
	}
	if c.Signaling.ProfileRefreshTimeout <= 0 {
		return fmt.Errorf("PROFILE_REFRESH_TIMEOUT must be positive, got %s", c.Signaling.ProfileRefreshTimeout)
	}
	if c.Signaling.MaxConnections <= 0 {
		return fmt.Errorf("WS_MAX_SIGNALING_CONNECTIONS must be positive, got %d", c.Signaling.MaxConnections)
	}
	if c.Signaling.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.Signaling.SendBuffer)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getSecret reads KEY_FILE first (Docker secrets) and falls back to KEY
func getSecret(key, defaultValue string) string {
	if filePath := os.Getenv(key + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filepath.Clean(filePath))
		if err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return getEnv(key, defaultValue)
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
