package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// Bundle layout. These paths are part of the external auditor interface.
const (
	FileManifest          = "manifest.json"
	FileTemplate          = "template.json"
	FileCommitmentReceipt = "commitment_receipt.json"
	FileScoresPerEpisode  = "scores/per_episode.jsonl"
	FileScoresAggregate   = "scores/aggregate.json"
	FileCertificate       = "certificate.json"
	FileAuditTrail        = "audit_trail.jsonl"

	DirGroundTruth = "ground_truth"
	DirInvocations = "invocations"
)

// requiredFiles is the minimum set a bundle must contain to back a
// certificate. Ground-truth files are dataset-named and checked by prefix.
var requiredFiles = []string{
	FileManifest,
	FileTemplate,
	FileCommitmentReceipt,
	FileScoresPerEpisode,
	FileScoresAggregate,
	FileCertificate,
}

// Manifest is the deterministic file inventory of a bundle. It excludes
// itself and the certificate: both are downstream of the inventory.
type Manifest struct {
	TheatreID  string            `json:"theatre_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Files      map[string]string `json:"files"` // relative path -> sha256 hex
	BundleHash string            `json:"bundle_hash"`
}

// invocationRecord pairs one request with its response for the audit record.
type invocationRecord struct {
	Request  contracts.OracleInvocationRequest  `json:"request"`
	Response contracts.OracleInvocationResponse `json:"response"`
}

// Builder writes a bundle through a Sink. One Builder per Theatre run;
// callers drive it sequentially (template, receipt, ground truth,
// invocations, scores, manifest, certificate last).
type Builder struct {
	sink      Sink
	theatreID string
	clock     func() time.Time
}

// NewBuilder creates a bundle builder.
func NewBuilder(sink Sink, theatreID string) *Builder {
	return &Builder{sink: sink, theatreID: theatreID, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WriteTemplate snapshots the committed template.
func (b *Builder) WriteTemplate(ctx context.Context, tpl contracts.TheatreTemplate) error {
	return b.writeJSON(ctx, FileTemplate, tpl)
}

// WriteCommitmentReceipt snapshots the commitment receipt.
func (b *Builder) WriteCommitmentReceipt(ctx context.Context, receipt *contracts.CommitmentReceipt) error {
	return b.writeJSON(ctx, FileCommitmentReceipt, receipt)
}

// WriteGroundTruth writes the dataset as one JSONL file, one line per
// episode, in dataset order.
func (b *Builder) WriteGroundTruth(ctx context.Context, datasetID string, episodes []contracts.GroundTruthEpisode) error {
	var buf []byte
	for _, ep := range episodes {
		line, err := canonicalize.JCS(ep)
		if err != nil {
			return fmt.Errorf("evidence: episode %q: %w", ep.EpisodeID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return b.sink.Write(ctx, DirGroundTruth+"/"+datasetID+".jsonl", buf)
}

// WriteInvocation records one oracle call: request plus response, one file
// per episode.
func (b *Builder) WriteInvocation(ctx context.Context, req contracts.OracleInvocationRequest, resp contracts.OracleInvocationResponse) error {
	return b.writeJSON(ctx, fmt.Sprintf("%s/%s.json", DirInvocations, req.EpisodeID), invocationRecord{
		Request:  req,
		Response: resp,
	})
}

// AppendEpisodeScore appends one episode result to the per-episode score log.
func (b *Builder) AppendEpisodeScore(ctx context.Context, er contracts.EpisodeResult) error {
	line, err := canonicalize.JCS(er)
	if err != nil {
		return fmt.Errorf("evidence: episode result %q: %w", er.EpisodeID, err)
	}
	return b.sink.Append(ctx, FileScoresPerEpisode, line)
}

// WriteAggregate writes the replay aggregate.
func (b *Builder) WriteAggregate(ctx context.Context, result *contracts.ReplayResult) error {
	// The aggregate omits the per-episode list: that lives in the JSONL log.
	aggregate := struct {
		TheatreID          string             `json:"theatre_id"`
		CompositeScore     float64            `json:"composite_score"`
		PerCriterionScores map[string]float64 `json:"per_criterion_scores"`
		FailureRate        float64            `json:"failure_rate"`
		DatasetHash        string             `json:"dataset_hash"`
		ReplayCount        int                `json:"replay_count"`
		RefusedCount       int                `json:"refused_count"`
		FailedCount        int                `json:"failed_count"`
	}{
		TheatreID:          result.TheatreID,
		CompositeScore:     result.CompositeScore,
		PerCriterionScores: result.PerCriterionScores,
		FailureRate:        result.FailureRate,
		DatasetHash:        result.DatasetHash,
		ReplayCount:        result.ReplayCount,
		RefusedCount:       result.RefusedCount,
		FailedCount:        result.FailedCount,
	}
	return b.writeJSON(ctx, FileScoresAggregate, aggregate)
}

// AppendAuditEvent appends one event to the bundle's audit trail.
func (b *Builder) AppendAuditEvent(ctx context.Context, ev contracts.AuditEvent) error {
	line, err := canonicalize.JCS(ev)
	if err != nil {
		return fmt.Errorf("evidence: audit event: %w", err)
	}
	return b.sink.Append(ctx, FileAuditTrail, line)
}

// FileInventory returns the sorted map of relative path -> SHA-256 of every
// bundle file, excluding the manifest and certificate.
func (b *Builder) FileInventory(ctx context.Context) (map[string]string, error) {
	paths, err := b.sink.List(ctx)
	if err != nil {
		return nil, err
	}
	inventory := make(map[string]string, len(paths))
	for _, p := range paths {
		if p == FileManifest || p == FileCertificate {
			continue
		}
		data, err := b.sink.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("evidence: read %s: %w", p, err)
		}
		inventory[p] = canonicalize.HashBytes(data)
	}
	return inventory, nil
}

// BundleHash is SHA-256 over the canonical JSON of the file inventory: it
// commits to the contents of every constituent file without a monolithic
// hash pass. Adding, removing, or modifying any file changes it.
func (b *Builder) BundleHash(ctx context.Context) (string, error) {
	inventory, err := b.FileInventory(ctx)
	if err != nil {
		return "", err
	}
	return canonicalize.CanonicalHash(inventory)
}

// WriteManifest computes the inventory and bundle hash and writes the
// manifest. Call after all evidence files and before the certificate.
func (b *Builder) WriteManifest(ctx context.Context) (*Manifest, error) {
	inventory, err := b.FileInventory(ctx)
	if err != nil {
		return nil, err
	}
	bundleHash, err := canonicalize.CanonicalHash(inventory)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		TheatreID:  b.theatreID,
		CreatedAt:  b.clock().UTC(),
		Files:      inventory,
		BundleHash: bundleHash,
	}
	if err := b.writeJSON(ctx, FileManifest, m); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteCertificate writes the final artifact. Always last.
func (b *Builder) WriteCertificate(ctx context.Context, cert *contracts.TheatreCalibrationCertificate) error {
	return b.writeJSON(ctx, FileCertificate, cert)
}

// ValidateMinimumFiles returns the required files that are missing; an empty
// slice means the bundle can back a certificate. An incomplete bundle must
// never be allowed to.
func (b *Builder) ValidateMinimumFiles(ctx context.Context) ([]string, error) {
	paths, err := b.sink.List(ctx)
	if err != nil {
		return nil, err
	}
	return MissingFiles(paths), nil
}

// MissingFiles checks a path listing against the required layout.
func MissingFiles(paths []string) []string {
	present := make(map[string]bool, len(paths))
	groundTruth := false
	for _, p := range paths {
		present[p] = true
		if len(p) > len(DirGroundTruth) && p[:len(DirGroundTruth)+1] == DirGroundTruth+"/" {
			groundTruth = true
		}
	}

	missing := []string{}
	for _, f := range requiredFiles {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	if !groundTruth {
		missing = append(missing, DirGroundTruth+"/")
	}
	sort.Strings(missing)
	return missing
}

// writeJSON canonicalizes v and writes it atomically. Canonical form keeps
// artifacts byte-stable across runs with identical content.
func (b *Builder) writeJSON(ctx context.Context, relPath string, v any) error {
	data, err := canonicalize.JCS(v)
	if err != nil {
		return fmt.Errorf("evidence: canonicalize %s: %w", relPath, err)
	}
	return b.sink.Write(ctx, relPath, data)
}

// DecodeManifest parses a manifest document.
func DecodeManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("evidence: invalid manifest: %w", err)
	}
	return &m, nil
}
