// Package contracts defines the shared data model of the Theatre Engine:
// theatres, templates, ground-truth episodes, oracle envelopes, replay
// results, commitment receipts, resolution steps, and calibration
// certificates.
//
// Everything here is plain data. Behavior lives in the packages that consume
// these types (commitment, replay, resolution, certificate, evidence).
package contracts

import (
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
)

// ExecutionPath selects how a Theatre produces evidence.
type ExecutionPath string

const (
	ExecutionPathReplay ExecutionPath = "replay"
	ExecutionPathMarket ExecutionPath = "market" // out of core scope; reserved in the schema
)

// Theatre is a single verification-run instance: one construct, one template,
// one committed dataset. The engine never persists Theatres itself; the
// orchestrating caller owns storage (see pkg/store for an optional one).
type Theatre struct {
	TheatreID     string            `json:"theatre_id"`
	State         lifecycle.State   `json:"state"`
	Template      TheatreTemplate   `json:"template"`
	CommitmentHash string           `json:"commitment_hash,omitempty"`
	VersionPins   map[string]string `json:"version_pins,omitempty"`
	DatasetHashes map[string]string `json:"dataset_hashes,omitempty"`

	// Progress counters, updated as replay advances. These track outcome,
	// not content: content is frozen the moment the Theatre leaves DRAFT.
	EpisodesTotal     int `json:"episodes_total,omitempty"`
	EpisodesCompleted int `json:"episodes_completed,omitempty"`

	CertificateID string    `json:"certificate_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CommittedAt   time.Time `json:"committed_at,omitempty"`
}

// TheatreTemplate is the committed evaluation contract. Once a Theatre is
// COMMITTED the template is immutable; runtime population happens on a deep
// copy via PopulateRuntime, never in place.
type TheatreTemplate struct {
	TemplateID    string        `json:"template_id"`
	TheatreID     string        `json:"theatre_id"`
	ConstructID   string        `json:"construct_id"`
	ExecutionPath ExecutionPath `json:"execution_path"`

	Criteria TheatreCriteria `json:"criteria"`

	// ReplayDatasetID names the committed ground-truth dataset; its hash must
	// be present in DatasetHashes before commit.
	ReplayDatasetID string `json:"replay_dataset_id"`

	// OracleAdapter selects the adapter kind bound at commit time
	// ("http", "local", "mock"). Mock adapters are rejected for
	// certificate-producing runs.
	OracleAdapter string `json:"oracle_adapter"`

	// ConstructChain lists every construct involved in producing an answer
	// (e.g. a retrieval construct feeding the primary). Each entry needs a
	// version pin.
	ConstructChain []string `json:"construct_chain,omitempty"`

	// ResolutionProgramme is the committed ordered step pipeline for
	// multi-step evaluation. May be empty for plain replay theatres.
	ResolutionProgramme []ResolutionStep `json:"resolution_programme,omitempty"`

	VersionPins   map[string]string `json:"version_pins,omitempty"`
	DatasetHashes map[string]string `json:"dataset_hashes,omitempty"`

	MethodologyVersion string `json:"methodology_version"`

	// ProducesCertificate marks runs whose outcome is a calibration
	// certificate, which tightens validation (non-mock adapter required).
	ProducesCertificate bool `json:"produces_certificate"`
}

// PopulateRuntime returns a fresh template with version pins and dataset
// hashes filled in. The receiver is never mutated: callers holding the draft
// template can never observe a half-populated value.
func (t TheatreTemplate) PopulateRuntime(pins, datasetHashes map[string]string) TheatreTemplate {
	out := t
	out.VersionPins = cloneStringMap(pins)
	out.DatasetHashes = cloneStringMap(datasetHashes)
	out.ConstructChain = append([]string(nil), t.ConstructChain...)
	out.ResolutionProgramme = append([]ResolutionStep(nil), t.ResolutionProgramme...)
	out.Criteria = t.Criteria.Clone()
	return out
}

// Clone returns a deep copy of the template.
func (t TheatreTemplate) Clone() TheatreTemplate {
	return t.PopulateRuntime(t.VersionPins, t.DatasetHashes)
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
