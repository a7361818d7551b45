package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Calibrant-Labs/theatre/core/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "DATABASE_URL", "BUNDLE_ROOT", "ORACLE_BASE_URL",
		"ORACLE_TIMEOUT_MS", "ORACLE_RETRIES", "PROFILES_DIR", "ENGINE_PROFILE",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "file:theatre.db", cfg.DatabaseURL)
	assert.Equal(t, "./bundles", cfg.BundleRoot)
	assert.Empty(t, cfg.OracleBaseURL)
	assert.Equal(t, 30*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 2, cfg.OracleRetries)
	assert.Equal(t, "./profiles", cfg.ProfilesDir)
	assert.Equal(t, "default", cfg.DefaultProfile)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://localhost/theatre")
	t.Setenv("BUNDLE_ROOT", "/var/lib/theatre/bundles")
	t.Setenv("ORACLE_BASE_URL", "http://oracle.internal:9000")
	t.Setenv("ORACLE_TIMEOUT_MS", "5000")
	t.Setenv("ORACLE_RETRIES", "0")
	t.Setenv("PROFILES_DIR", "/etc/theatre/profiles")
	t.Setenv("ENGINE_PROFILE", "strict")

	cfg := config.Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/theatre", cfg.DatabaseURL)
	assert.Equal(t, "/var/lib/theatre/bundles", cfg.BundleRoot)
	assert.Equal(t, "http://oracle.internal:9000", cfg.OracleBaseURL)
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 0, cfg.OracleRetries)
	assert.Equal(t, "/etc/theatre/profiles", cfg.ProfilesDir)
	assert.Equal(t, "strict", cfg.DefaultProfile)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT_MS", "not-a-number")
	t.Setenv("ORACLE_RETRIES", "-3")

	cfg := config.Load()
	assert.Equal(t, 30*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 2, cfg.OracleRetries)
}
