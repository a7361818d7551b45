// Package verifier provides offline evidence-bundle verification.
//
// This package is intentionally minimal with ZERO server or network
// dependencies. It is designed to be buildable and auditable as a standalone
// verification tool that an adversarial third party can trust: it trusts
// only SHA-256, canonical JSON, and the bundle layout, never the engine
// that produced the bundle.
package verifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/evidence"
)

// VerifierVersion is reported in every verification report.
const VerifierVersion = "1.0.0"

// Report is the structured output of offline verification, designed for
// auditor consumption.
type Report struct {
	Bundle      string        `json:"bundle"`
	Verified    bool          `json:"verified"`
	Timestamp   time.Time     `json:"timestamp"`
	Checks      []CheckResult `json:"checks"`
	Summary     string        `json:"summary"`
	IssueCount  int           `json:"issue_count"`
	VerifierVer string        `json:"verifier_version"`
}

// CheckResult represents a single verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// VerifyBundle performs offline verification of an evidence bundle
// directory. No network access. Pure filesystem + crypto.
func VerifyBundle(bundlePath string) (*Report, error) {
	report := &Report{
		Bundle:      bundlePath,
		Verified:    true,
		Timestamp:   time.Now().UTC(),
		Checks:      make([]CheckResult, 0),
		VerifierVer: VerifierVersion,
	}

	report.addCheck(checkStructure(bundlePath))
	report.addCheck(checkMinimumFiles(bundlePath))

	manifest, mc := loadManifest(bundlePath)
	report.addCheck(mc)
	if manifest != nil {
		report.addChecks(checkFileHashes(bundlePath, manifest))
		report.addCheck(checkBundleHash(bundlePath, manifest))
	}
	report.addCheck(checkCertificateParses(bundlePath))

	failed := 0
	for _, c := range report.Checks {
		if !c.Pass {
			failed++
		}
	}
	report.IssueCount = failed
	if failed > 0 {
		report.Verified = false
		report.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", failed, len(report.Checks))
	} else {
		report.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(report.Checks), len(report.Checks))
	}
	return report, nil
}

func (r *Report) addCheck(c CheckResult) { r.Checks = append(r.Checks, c) }

func (r *Report) addChecks(cs []CheckResult) { r.Checks = append(r.Checks, cs...) }

func checkStructure(bundlePath string) CheckResult {
	info, err := os.Stat(bundlePath)
	if err != nil {
		return CheckResult{Name: "structure", Pass: false, Reason: fmt.Sprintf("path not found: %v", err)}
	}
	if !info.IsDir() {
		return CheckResult{Name: "structure", Pass: false, Reason: "bundle must be a directory"}
	}
	if !fileExists(filepath.Join(bundlePath, evidence.FileManifest)) {
		return CheckResult{Name: "structure", Pass: false, Reason: "missing manifest.json"}
	}
	return CheckResult{Name: "structure", Pass: true, Detail: "bundle structure valid"}
}

func checkMinimumFiles(bundlePath string) CheckResult {
	paths, err := listFiles(bundlePath)
	if err != nil {
		return CheckResult{Name: "minimum_files", Pass: false, Reason: err.Error()}
	}
	missing := evidence.MissingFiles(paths)
	if len(missing) > 0 {
		return CheckResult{
			Name:   "minimum_files",
			Pass:   false,
			Reason: "missing required files: " + strings.Join(missing, ", "),
		}
	}
	return CheckResult{Name: "minimum_files", Pass: true, Detail: fmt.Sprintf("%d files present", len(paths))}
}

func loadManifest(bundlePath string) (*evidence.Manifest, CheckResult) {
	data, err := os.ReadFile(filepath.Join(bundlePath, evidence.FileManifest))
	if err != nil {
		return nil, CheckResult{Name: "manifest_integrity", Pass: false, Reason: fmt.Sprintf("cannot read manifest: %v", err)}
	}
	m, err := evidence.DecodeManifest(data)
	if err != nil {
		return nil, CheckResult{Name: "manifest_integrity", Pass: false, Reason: err.Error()}
	}
	if m.Files == nil {
		return nil, CheckResult{Name: "manifest_integrity", Pass: false, Reason: "manifest has no file inventory"}
	}
	return m, CheckResult{Name: "manifest_integrity", Pass: true, Detail: fmt.Sprintf("%d inventoried files", len(m.Files))}
}

func checkFileHashes(bundlePath string, manifest *evidence.Manifest) []CheckResult {
	var results []CheckResult

	names := make([]string, 0, len(manifest.Files))
	for name := range manifest.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		expected := manifest.Files[name]
		content, err := os.ReadFile(filepath.Join(bundlePath, filepath.FromSlash(name)))
		if err != nil {
			results = append(results, CheckResult{
				Name: "hash:" + name, Pass: false,
				Reason: fmt.Sprintf("file missing: %v", err),
			})
			continue
		}
		actual := canonicalize.HashBytes(content)
		if actual != expected {
			results = append(results, CheckResult{
				Name: "hash:" + name, Pass: false,
				Reason: fmt.Sprintf("hash mismatch: expected %s, got %s", expected, actual),
			})
			continue
		}
		results = append(results, CheckResult{Name: "hash:" + name, Pass: true, Detail: "hash verified"})
	}

	// Any evidence file on disk but absent from the inventory is tampering.
	paths, err := listFiles(bundlePath)
	if err == nil {
		for _, p := range paths {
			if p == evidence.FileManifest || p == evidence.FileCertificate {
				continue
			}
			if _, ok := manifest.Files[p]; !ok {
				results = append(results, CheckResult{
					Name: "hash:" + p, Pass: false,
					Reason: "file not in manifest inventory",
				})
			}
		}
	}
	return results
}

func checkBundleHash(_ string, manifest *evidence.Manifest) CheckResult {
	recomputed, err := canonicalize.CanonicalHash(manifest.Files)
	if err != nil {
		return CheckResult{Name: "bundle_hash", Pass: false, Reason: err.Error()}
	}
	if recomputed != manifest.BundleHash {
		return CheckResult{
			Name: "bundle_hash", Pass: false,
			Reason: fmt.Sprintf("bundle hash mismatch: manifest %s, recomputed %s", manifest.BundleHash, recomputed),
		}
	}
	return CheckResult{Name: "bundle_hash", Pass: true, Detail: "bundle hash verified"}
}

func checkCertificateParses(bundlePath string) CheckResult {
	data, err := os.ReadFile(filepath.Join(bundlePath, evidence.FileCertificate))
	if err != nil {
		return CheckResult{Name: "certificate", Pass: false, Reason: fmt.Sprintf("cannot read certificate: %v", err)}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return CheckResult{Name: "certificate", Pass: false, Reason: fmt.Sprintf("invalid certificate JSON: %v", err)}
	}
	return CheckResult{Name: "certificate", Pass: true, Detail: "certificate is valid JSON"}
}

func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk bundle: %v", err)
	}
	sort.Strings(out)
	return out, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
