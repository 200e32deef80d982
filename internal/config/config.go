package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port              int
	DatabasePath      string
	LogLevel          string
	DevMode           bool
	PriceSyncSchedule string
	PriceMaxAgeMins   int
	YahooBaseURL      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/rebalancer.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		PriceSyncSchedule: getEnv("PRICE_SYNC_SCHEDULE", "@hourly"),
		PriceMaxAgeMins:   getEnvAsInt("PRICE_MAX_AGE_MINS", 60),
		YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.PriceMaxAgeMins <= 0 {
		return fmt.Errorf("PRICE_MAX_AGE_MINS must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
