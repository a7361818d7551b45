package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds engine configuration.
type Config struct {
	LogLevel       string
	DatabaseURL    string
	BundleRoot     string
	OracleBaseURL  string
	OracleTimeout  time.Duration
	OracleRetries  int
	ProfilesDir    string
	DefaultProfile string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:theatre.db"
	}

	bundleRoot := os.Getenv("BUNDLE_ROOT")
	if bundleRoot == "" {
		bundleRoot = "./bundles"
	}

	oracleURL := os.Getenv("ORACLE_BASE_URL")

	timeout := 30 * time.Second
	if raw := os.Getenv("ORACLE_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	retries := 2
	if raw := os.Getenv("ORACLE_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			retries = n
		}
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./profiles"
	}

	defaultProfile := os.Getenv("ENGINE_PROFILE")
	if defaultProfile == "" {
		defaultProfile = "default"
	}

	return &Config{
		LogLevel:       logLevel,
		DatabaseURL:    dbURL,
		BundleRoot:     bundleRoot,
		OracleBaseURL:  oracleURL,
		OracleTimeout:  timeout,
		OracleRetries:  retries,
		ProfilesDir:    profilesDir,
		DefaultProfile: defaultProfile,
	}
}
