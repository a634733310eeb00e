// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/joho/godotenv"

	"github.com/zapponejosh/weekend-planner/internal/jobs"
)

// Config holds all application configuration.
// Fields are populated from environment variables.
type Config struct {
	// Server settings
	Port int    // HTTP port to listen on
	Env  string // development, staging, production

	// Database
	DatabasePath string // Path to SQLite file

	// Authentication
	APIKey string // API key for mutating endpoints

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Planning
	Timezone       string // IANA zone the weekends are planned in
	WeekendHorizon int    // Weekends listed when the client does not ask

	// Suggestions
	GeminiAPIKey string
	GeminiModel  string

	// Remote mirror
	MongoURI      string
	MongoDatabase string
	SyncSchedule  string // cron expression for mirror sync, "off" to disable
}

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// MaxWeekendHorizon caps how far ahead weekends are listed.
const MaxWeekendHorizon = 52

// SyncOff disables the scheduled mirror sync.
const SyncOff = "off"

// Load reads configuration from environment variables.
// In development, it first loads from .env file if present.
func Load() (*Config, error) {
	// Ignored when the file is missing; production sets env vars directly.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server settings
	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Env = getEnv("ENV", EnvDevelopment)

	// Database
	cfg.DatabasePath = getEnv("DATABASE_PATH", "./data/weekends.db")

	// Authentication
	cfg.APIKey = getEnv("API_KEY", "")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	// Planning
	cfg.Timezone = getEnv("TIMEZONE", "UTC")
	cfg.WeekendHorizon = getEnvInt("WEEKEND_HORIZON", 8)

	// Suggestions
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite")

	// Remote mirror
	cfg.MongoURI = getEnv("MONGO_URI", "")
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", "weekend_planner")
	cfg.SyncSchedule = getEnv("SYNC_SCHEDULE", "*/15 * * * *")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production; got %q", c.Env))
	}

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	// API key is required in production
	if c.Env == EnvProduction && c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required in production"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, text; got %q", c.LogFormat))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q is not a known zone: %w", c.Timezone, err))
	}

	if c.WeekendHorizon < 1 || c.WeekendHorizon > MaxWeekendHorizon {
		errs = append(errs, fmt.Errorf("WEEKEND_HORIZON must be between 1 and %d, got %d", MaxWeekendHorizon, c.WeekendHorizon))
	}

	if c.MongoURI != "" && c.MongoDatabase == "" {
		errs = append(errs, errors.New("MONGO_DATABASE is required when MONGO_URI is set"))
	}

	if c.SyncSchedule != "" && c.SyncSchedule != SyncOff {
		if err := jobs.ValidateSpec(c.SyncSchedule); err != nil {
			errs = append(errs, fmt.Errorf("SYNC_SCHEDULE: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Location returns the planning time zone. Validate guarantees it loads;
// UTC is returned otherwise.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SuggestionsEnabled reports whether a Gemini key is configured.
func (c *Config) SuggestionsEnabled() bool {
	return c.GeminiAPIKey != ""
}

// MirrorEnabled reports whether a remote mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.MongoURI != ""
}

// SyncEnabled reports whether the mirror should be synced on a schedule.
func (c *Config) SyncEnabled() bool {
	return c.MirrorEnabled() && c.SyncSchedule != "" && c.SyncSchedule != SyncOff
}

// getEnv reads an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
