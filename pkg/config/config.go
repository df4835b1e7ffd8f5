// Package config provides configuration management for the underwriting tools.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Paths    PathsConfig
	Analysis AnalysisConfig
	Server   ServerConfig
	Debug    bool
}

// PathsConfig locates configuration tables and persisted data.
type PathsConfig struct {
	DataDir      string
	DBPath       string
	StorePath    string
	KeywordsFile string
	LendersFile  string
}

// AnalysisConfig tunes position detection and deal defaults.
type AnalysisConfig struct {
	FundingWindowDays int
	// AmountTolerance merges withdrawal amounts this many whole units apart.
	// Zero keeps exact amounts.
	AmountTolerance   int64
	DefaultTermDays   int
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Port int
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	window, err := parseIntEnv("FUNDING_WINDOW_DAYS", 7)
	if err != nil {
		return nil, err
	}
	tolerance, err := parseInt64Env("AMOUNT_TOLERANCE", 1)
	if err != nil {
		return nil, err
	}
	termDays, err := parseIntEnv("DEFAULT_TERM_DAYS", 120)
	if err != nil {
		return nil, err
	}
	port, err := parseIntEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Paths: PathsConfig{
			DataDir:      getEnvOrDefault("UNDERWRITE_DATA_DIR", "./data"),
			DBPath:       os.Getenv("UNDERWRITE_DB_PATH"),
			StorePath:    os.Getenv("UNDERWRITE_STORE_PATH"),
			KeywordsFile: getEnvOrDefault("UNDERWRITE_KEYWORDS", "config/keywords.yaml"),
			LendersFile:  getEnvOrDefault("UNDERWRITE_LENDERS", "config/lenders.csv"),
		},
		Analysis: AnalysisConfig{
			FundingWindowDays: window,
			AmountTolerance:   tolerance,
			DefaultTermDays:   termDays,
		},
		Server: ServerConfig{
			Port: port,
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that the named fields are set and that numeric settings
// are in range. Each required entry is a path such as []string{"paths", "dataDir"}.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "paths":
			switch path[1] {
			case "dataDir":
				value = c.Paths.DataDir
			case "dbPath":
				value = c.Paths.DBPath
			case "storePath":
				value = c.Paths.StorePath
			case "keywordsFile":
				value = c.Paths.KeywordsFile
			case "lendersFile":
				value = c.Paths.LendersFile
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	if c.Analysis.FundingWindowDays <= 0 {
		return fmt.Errorf("FUNDING_WINDOW_DAYS must be positive, got %d", c.Analysis.FundingWindowDays)
	}
	if c.Analysis.DefaultTermDays <= 0 {
		return fmt.Errorf("DEFAULT_TERM_DAYS must be positive, got %d", c.Analysis.DefaultTermDays)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseInt64Env parses an int64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}
