// Package config provides application configuration loaded from environment
// variables (optionally from a .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// DefaultBatchPageSize is the page size used when BATCH_PAGE_SIZE is unset.
const DefaultBatchPageSize = 100

// Config holds all application configuration.
type Config struct {
	Port   int
	DBPath string

	LogLevel  string
	LogFormat string // "json" or "text"

	// BatchPageSize bounds each batch of a full recalculation and of a
	// payroll listing.
	BatchPageSize int
	// RecalcInterval is how often the scheduler ends expired contracts
	// and recalculates every agency. Zero disables the scheduler.
	RecalcInterval time.Duration

	// Overrides for the rules substituted when a contract references a
	// missing rule set. Empty or nil keeps the built-in value.
	DefaultCutoff                  string
	DefaultFirstMinutePenalty      *decimal.Decimal
	DefaultAdditionalMinutePenalty *decimal.Decimal
	DefaultDrinkPrice              *decimal.Decimal
	DefaultStaffCommission         *decimal.Decimal
}

// Load reads a .env file if present, then configuration from the
// environment. It uses sensible defaults for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		DBPath:         getEnv("DB_PATH", "payroll.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		BatchPageSize:  getEnvInt("BATCH_PAGE_SIZE", DefaultBatchPageSize),
		RecalcInterval: getEnvDuration("RECALC_INTERVAL", time.Hour),
		DefaultCutoff:  getEnv("DEFAULT_LATE_CUTOFF", ""),
	}

	var err error
	if cfg.DefaultFirstMinutePenalty, err = getEnvDecimal("DEFAULT_FIRST_MINUTE_PENALTY"); err != nil {
		return nil, err
	}
	if cfg.DefaultAdditionalMinutePenalty, err = getEnvDecimal("DEFAULT_ADDITIONAL_MINUTE_PENALTY"); err != nil {
		return nil, err
	}
	if cfg.DefaultDrinkPrice, err = getEnvDecimal("DEFAULT_DRINK_PRICE"); err != nil {
		return nil, err
	}
	if cfg.DefaultStaffCommission, err = getEnvDecimal("DEFAULT_STAFF_COMMISSION"); err != nil {
		return nil, err
	}
	if cfg.BatchPageSize <= 0 {
		return nil, fmt.Errorf("BATCH_PAGE_SIZE must be positive, got %d", cfg.BatchPageSize)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvDecimal returns nil when key is unset.
func getEnvDecimal(key string) (*decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q", key, v)
	}
	return &d, nil
}
