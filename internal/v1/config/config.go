package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	JWTSecret string

	// Optional variables with defaults
	Port           string
	RoomCodeLength int
	GracePeriod    time.Duration
	LogLevel       string
	AllowedOrigins string

	DevelopmentMode bool

	// Tracing (opt-in)
	OtelEnabled       bool
	OtelCollectorAddr string
}

const (
	defaultPort           = "3030"
	defaultRoomCodeLength = 4
	defaultGraceSeconds   = 10
)

// ValidateEnv validates all environment variables and returns a Config.
// All violations are collected so the operator sees every problem at once.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: JWT_SECRET
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	}

	// Optional: PORT (defaults to 3030)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = defaultPort
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: ROOM_CODE_LENGTH (defaults to 4, must be 1..=9)
	cfg.RoomCodeLength = defaultRoomCodeLength
	if raw := os.Getenv("ROOM_CODE_LENGTH"); raw != "" {
		length, err := strconv.Atoi(raw)
		if err != nil || length < 1 || length > 9 {
			errors = append(errors, fmt.Sprintf("ROOM_CODE_LENGTH must be between 1 and 9 (got '%s')", raw))
		} else {
			cfg.RoomCodeLength = length
		}
	}

	// Optional: CLEANUP_GRACE_PERIOD in seconds (defaults to 10)
	cfg.GracePeriod = defaultGraceSeconds * time.Second
	if raw := os.Getenv("CLEANUP_GRACE_PERIOD"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			errors = append(errors, fmt.Sprintf("CLEANUP_GRACE_PERIOD must be a positive number of seconds (got '%s')", raw))
		} else {
			cfg.GracePeriod = time.Duration(seconds) * time.Second
		}
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollectorAddr == "" {
			cfg.OtelCollectorAddr = "localhost:4317"
			slog.Warn("OTEL_COLLECTOR_ADDR not set, using default", "addr", cfg.OtelCollectorAddr)
		}
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"room_code_length", cfg.RoomCodeLength,
		"grace_period", cfg.GracePeriod,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"otel_enabled", cfg.OtelEnabled,
	)
}

// redactSecret redacts a secret by showing only the first 8 characters.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
