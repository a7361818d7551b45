package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineProfile represents a named replay/issuance configuration profile.
// Profiles let operators tune oracle and tier behaviour per deployment
// without touching committed templates.
type EngineProfile struct {
	Name       string           `yaml:"name" json:"name"`
	Code       string           `yaml:"code" json:"code"`
	Oracle     OracleConfig     `yaml:"oracle" json:"oracle"`
	Thresholds ThresholdsConfig `yaml:"thresholds" json:"thresholds"`
	Evidence   EvidenceConfig   `yaml:"evidence" json:"evidence"`
}

// OracleConfig holds oracle invocation defaults per profile.
type OracleConfig struct {
	TimeoutMs     int     `yaml:"timeout_ms" json:"timeout_ms"`
	RetryCount    int     `yaml:"retry_count" json:"retry_count"`
	BackoffBaseMs int     `yaml:"backoff_base_ms" json:"backoff_base_ms"`
	RateLimitRPS  float64 `yaml:"rate_limit_rps,omitempty" json:"rate_limit_rps,omitempty"`
}

// ThresholdsConfig overrides tier-eligibility thresholds. Zero values fall
// back to the engine defaults.
type ThresholdsConfig struct {
	MinReplayCount int     `yaml:"min_replay_count,omitempty" json:"min_replay_count,omitempty"`
	MaxFailureRate float64 `yaml:"max_failure_rate,omitempty" json:"max_failure_rate,omitempty"`
}

// EvidenceConfig controls where bundles land.
type EvidenceConfig struct {
	Sink     string `yaml:"sink" json:"sink"` // "fs" | "s3"
	Root     string `yaml:"root,omitempty" json:"root,omitempty"`
	S3Bucket string `yaml:"s3_bucket,omitempty" json:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty" json:"s3_prefix,omitempty"`
}

// Timeout returns the profile's oracle timeout as a duration.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// BackoffBase returns the profile's backoff base as a duration.
func (o OracleConfig) BackoffBase() time.Duration {
	if o.BackoffBaseMs <= 0 {
		return 0
	}
	return time.Duration(o.BackoffBaseMs) * time.Millisecond
}

// LoadProfile loads an engine profile YAML by code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*EngineProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile EngineProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*EngineProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*EngineProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile EngineProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_default.yaml -> default
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}
