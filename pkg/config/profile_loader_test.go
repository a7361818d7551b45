package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Calibrant-Labs/theatre/core/pkg/config"
)

const strictProfile = `
name: Strict Calibration
code: strict
oracle:
  timeout_ms: 10000
  retry_count: 1
  backoff_base_ms: 500
  rate_limit_rps: 2.5
thresholds:
  min_replay_count: 100
  max_failure_rate: 0.1
evidence:
  sink: s3
  s3_bucket: theatre-evidence
  s3_prefix: bundles/
`

func writeProfile(t *testing.T, dir, code, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", strictProfile)

	p, err := config.LoadProfile(dir, "strict")
	require.NoError(t, err)
	assert.Equal(t, "Strict Calibration", p.Name)
	assert.Equal(t, "strict", p.Code)
	assert.Equal(t, 10*time.Second, p.Oracle.Timeout())
	assert.Equal(t, 1, p.Oracle.RetryCount)
	assert.Equal(t, 500*time.Millisecond, p.Oracle.BackoffBase())
	assert.Equal(t, 2.5, p.Oracle.RateLimitRPS)
	assert.Equal(t, 100, p.Thresholds.MinReplayCount)
	assert.Equal(t, 0.1, p.Thresholds.MaxFailureRate)
	assert.Equal(t, "s3", p.Evidence.Sink)
	assert.Equal(t, "theatre-evidence", p.Evidence.S3Bucket)
}

func TestLoadProfileCaseInsensitiveCode(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", strictProfile)

	p, err := config.LoadProfile(dir, "STRICT")
	require.NoError(t, err)
	assert.Equal(t, "strict", p.Code)
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := config.LoadProfile(t.TempDir(), "nope")
	assert.Error(t, err)
}

func TestLoadProfileMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", "oracle: [not a map")

	_, err := config.LoadProfile(dir, "bad")
	assert.Error(t, err)
}

func TestLoadProfileCodeFallsBackToArgument(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "lenient", "name: Lenient\noracle:\n  timeout_ms: 1000\n")

	p, err := config.LoadProfile(dir, "lenient")
	require.NoError(t, err)
	assert.Equal(t, "lenient", p.Code)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", strictProfile)
	writeProfile(t, dir, "default", "name: Default\n")

	profiles, err := config.LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	// Code for the default profile comes from its filename.
	require.Contains(t, profiles, "default")
	assert.Equal(t, "Default", profiles["default"].Name)
	require.Contains(t, profiles, "strict")
	assert.Equal(t, 1, profiles["strict"].Oracle.RetryCount)
}

func TestLoadAllProfilesEmptyDir(t *testing.T) {
	profiles, err := config.LoadAllProfiles(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestOracleConfigZeroDurations(t *testing.T) {
	var o config.OracleConfig
	assert.Equal(t, time.Duration(0), o.Timeout())
	assert.Equal(t, time.Duration(0), o.BackoffBase())
}
