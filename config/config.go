// Package config loads the edge agent configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEndpoint = "https://control.inorbit.ai/cloud_sdk_robot_config"

type Config struct {
	// InOrbit
	APIKey   string
	Endpoint string
	UseSSL   bool

	// Application
	LogLevel string
}

// Load reads configuration from the environment. A missing .env file is
// not an error; a missing API key is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Environment variables alone are fine.
	}

	cfg := &Config{
		APIKey:   os.Getenv("INORBIT_API_KEY"),
		Endpoint: getEnv("INORBIT_API_URL", defaultEndpoint),
		UseSSL:   strings.ToLower(getEnv("INORBIT_USE_SSL", "true")) == "true",
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("INORBIT_API_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
