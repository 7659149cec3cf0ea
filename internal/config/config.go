package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/tracing"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Tracing   tracing.Config  `json:"tracing" yaml:"tracing"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Terminal  TerminalConfig  `json:"terminal" yaml:"terminal"`
	Log       logging.Config  `json:"log" yaml:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `json:"port" yaml:"port"`
	Host      string `json:"host" yaml:"host"`
	EnableTLS bool   `json:"enable_tls" yaml:"enable_tls"`
	CertFile  string `json:"cert_file" yaml:"cert_file"`
	KeyFile   string `json:"key_file" yaml:"key_file"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size" yaml:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" yaml:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Rate    int  `json:"rate" yaml:"rate"`
	Window  int  `json:"window" yaml:"window"` // in seconds
}

// CacheConfig holds receipt cache configuration. An empty RedisAddr
// selects the in-memory cache.
type CacheConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	TTL           int    `json:"ttl" yaml:"ttl"` // in seconds
}

// TTLDuration returns the receipt TTL.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// TerminalConfig describes the validator this backend drives.
type TerminalConfig struct {
	LocationID      int    `json:"location_id" yaml:"location_id"`
	DefaultAmount   int    `json:"default_amount" yaml:"default_amount"` // stored-value debit per tap
	MifareKeyNumber int    `json:"mifare_key_number" yaml:"mifare_key_number"`
	Timezone        string `json:"timezone" yaml:"timezone"` // IANA name, events are stamped in it
}

// LoadLocation resolves the terminal timezone.
func (t TerminalConfig) LoadLocation() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			Host:      getEnv("SERVER_HOST", ""),
			EnableTLS: getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:  getEnv("SERVER_CERT_FILE", ""),
			KeyFile:   getEnv("SERVER_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./ticket_validation.db"),
		},
		Security: SecurityConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
		},
		Tracing: tracing.Config{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", tracing.DefaultServiceName),
			Environment: getEnv("TRACING_ENVIRONMENT", "development"),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvInt("CACHE_TTL", 300),
		},
		Terminal: TerminalConfig{
			LocationID:      getEnvInt("TERMINAL_LOCATION_ID", 0),
			DefaultAmount:   getEnvInt("TERMINAL_DEFAULT_AMOUNT", 1),
			MifareKeyNumber: getEnvInt("TERMINAL_MIFARE_KEY_NUMBER", 0),
			Timezone:        getEnv("TERMINAL_TIMEZONE", "UTC"),
		},
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Load from config file if provided
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (they take precedence)
	overrideFromEnv(cfg)

	return cfg, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	overrideString("SERVER_PORT", &cfg.Server.Port)
	overrideString("SERVER_HOST", &cfg.Server.Host)
	overrideBool("SERVER_ENABLE_TLS", &cfg.Server.EnableTLS)
	overrideString("SERVER_CERT_FILE", &cfg.Server.CertFile)
	overrideString("SERVER_KEY_FILE", &cfg.Server.KeyFile)
	overrideString("DATABASE_PATH", &cfg.Database.Path)
	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	overrideString("ALLOWED_ORIGINS", &cfg.Security.AllowedOrigins)
	overrideBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	overrideInt("RATE_LIMIT_RATE", &cfg.RateLimit.Rate)
	overrideInt("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	overrideBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	overrideString("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	overrideString("TRACING_SERVICE_NAME", &cfg.Tracing.ServiceName)
	overrideString("TRACING_ENVIRONMENT", &cfg.Tracing.Environment)
	overrideString("REDIS_ADDR", &cfg.Cache.RedisAddr)
	overrideString("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	overrideInt("REDIS_DB", &cfg.Cache.RedisDB)
	overrideInt("CACHE_TTL", &cfg.Cache.TTL)
	overrideInt("TERMINAL_LOCATION_ID", &cfg.Terminal.LocationID)
	overrideInt("TERMINAL_DEFAULT_AMOUNT", &cfg.Terminal.DefaultAmount)
	overrideInt("TERMINAL_MIFARE_KEY_NUMBER", &cfg.Terminal.MifareKeyNumber)
	overrideString("TERMINAL_TIMEZONE", &cfg.Terminal.Timezone)
	overrideString("LOG_LEVEL", &cfg.Log.Level)
	overrideString("LOG_FORMAT", &cfg.Log.Format)
}

func overrideString(key string, dst *string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func overrideBool(key string, dst *bool) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func overrideInt(key string, dst *int) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if c.Terminal.DefaultAmount < 0 {
		return fmt.Errorf("terminal default amount must not be negative")
	}
	if c.Terminal.MifareKeyNumber < 0 || c.Terminal.MifareKeyNumber > card.MaxKeyNumber {
		return fmt.Errorf("terminal mifare key number must be in 0..%d", card.MaxKeyNumber)
	}
	if _, err := c.Terminal.LoadLocation(); err != nil {
		return fmt.Errorf("terminal timezone: %w", err)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	return nil
}
