package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transports a plugin can serve on
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds all configuration for a plugin process
type Config struct {
	// Plugin selection
	PluginName string
	Transport  string

	// Server Configuration
	Port        string
	Host        string
	Environment string

	// WebSocket Configuration
	WSEndpoint string

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Load shedding and health
	RateLimitRPS     float64
	RateLimitBurst   int
	DegradedInflight int
	MaxBodyBytes     int

	// Host-side call policy
	CallTimeout     time.Duration
	RetryAttempts   int
	MaxInflight     int
	ShutdownTimeout time.Duration

	// Feature Toggles
	EnableWebSocket      bool
	EnableMetrics        bool
	EnableRateLimiting   bool
	EnableCircuitBreaker bool
	EnableDetailedErrors bool
	EnableDebugEndpoints bool
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults
func FromEnv() *Config {
	return &Config{
		PluginName: getEnv("PLUGIN_NAME", "error-aggregator"),
		Transport:  strings.ToLower(getEnv("PLUGIN_TRANSPORT", TransportHTTP)),

		Port:        getEnv("PORT", "8080"),
		Host:        getEnv("HOST", "localhost"),
		Environment: getEnv("ENVIRONMENT", "development"),

		WSEndpoint: getEnv("WS_ENDPOINT", "/ws"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		RateLimitRPS:     getEnvAsFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 100),
		DegradedInflight: getEnvAsInt("DEGRADED_INFLIGHT", 32),
		MaxBodyBytes:     getEnvAsInt("MAX_BODY_BYTES", 10*1024*1024),

		CallTimeout:     getEnvAsDuration("CALL_TIMEOUT", 30*time.Second),
		RetryAttempts:   getEnvAsInt("RETRY_ATTEMPTS", 3),
		MaxInflight:     getEnvAsInt("MAX_INFLIGHT", 8),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		EnableWebSocket:      getEnvAsBool("ENABLE_WEBSOCKET", true),
		EnableMetrics:        getEnvAsBool("ENABLE_METRICS", true),
		EnableRateLimiting:   getEnvAsBool("ENABLE_RATE_LIMITING", true),
		EnableCircuitBreaker: getEnvAsBool("ENABLE_CIRCUIT_BREAKER", true),
		EnableDetailedErrors: getEnvAsBool("ENABLE_DETAILED_ERRORS", false),
		EnableDebugEndpoints: getEnvAsBool("ENABLE_DEBUG_ENDPOINTS", false),
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a fallback default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as boolean with a fallback default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return c.Host + ":" + c.Port
}

// Validate validates the configuration and returns any errors
func (c *Config) Validate() []string {
	var errors []string

	if c.PluginName == "" {
		errors = append(errors, "PLUGIN_NAME is required")
	}

	if !contains([]string{TransportHTTP, TransportStdio}, c.Transport) {
		errors = append(errors, "PLUGIN_TRANSPORT must be one of: http, stdio")
	}

	if c.Transport == TransportHTTP {
		if c.Port == "" {
			errors = append(errors, "PORT is required")
		} else if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
			errors = append(errors, "PORT must be a number between 1 and 65535")
		}
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if !contains([]string{"json", "text"}, c.LogFormat) {
		errors = append(errors, "LOG_FORMAT must be one of: json, text")
	}

	if !contains([]string{"development", "staging", "production", "test"}, c.Environment) {
		errors = append(errors, "ENVIRONMENT must be one of: development, staging, production, test")
	}

	if c.EnableRateLimiting && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		errors = append(errors, "RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}

	if c.DegradedInflight < 1 {
		errors = append(errors, "DEGRADED_INFLIGHT must be at least 1")
	}

	if c.CallTimeout <= 0 {
		errors = append(errors, "CALL_TIMEOUT must be positive")
	}

	if c.RetryAttempts < 1 {
		errors = append(errors, "RETRY_ATTEMPTS must be at least 1")
	}

	if c.MaxInflight < 0 {
		errors = append(errors, "MAX_INFLIGHT must not be negative")
	}

	return errors
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
