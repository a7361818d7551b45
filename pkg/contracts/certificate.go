package contracts

import "time"

// VerificationTier is the trust classification derived from replay statistics
// and evidence completeness.
type VerificationTier string

const (
	TierUnverified VerificationTier = "UNVERIFIED"
	TierBacktested VerificationTier = "BACKTESTED"
	TierProven     VerificationTier = "PROVEN"
)

// ExtendedMetrics are optional calibration metrics carried on a certificate.
type ExtendedMetrics struct {
	Precision  *float64 `json:"precision,omitempty"`
	Recall     *float64 `json:"recall,omitempty"`
	BrierScore *float64 `json:"brier_score,omitempty"`
	ECE        *float64 `json:"ece,omitempty"`
}

// TheatreCalibrationCertificate is the terminal artifact of a completed
// Theatre: schema-validated before it is considered issued, immutable after.
// "Tamper-evident" means hash-verifiable against the evidence bundle and
// commitment receipt, not digitally signed.
type TheatreCalibrationCertificate struct {
	CertificateID string `json:"certificate_id"`
	TheatreID     string `json:"theatre_id"`
	TemplateID    string `json:"template_id"`
	ConstructID   string `json:"construct_id"`

	Criteria       TheatreCriteria    `json:"criteria"`
	Scores         map[string]float64 `json:"scores"`
	CompositeScore float64            `json:"composite_score"`

	ReplayCount        int    `json:"replay_count"`
	EvidenceBundleHash string `json:"evidence_bundle_hash"`
	GroundTruthHash    string `json:"ground_truth_hash"`
	DatasetHash        string `json:"dataset_hash"`

	MethodologyVersion     string            `json:"methodology_version"`
	ConstructChainVersions map[string]string `json:"construct_chain_versions,omitempty"`

	ExecutionPath    ExecutionPath    `json:"execution_path"`
	VerificationTier VerificationTier `json:"verification_tier"`

	CommitmentHash string    `json:"commitment_hash"`
	IssuedAt       time.Time `json:"issued_at"`

	Metrics *ExtendedMetrics `json:"metrics,omitempty"`

	// ExpiresAt is zero for UNVERIFIED: no positive claim, nothing to expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
