package contracts

import "time"

// CommitmentReceipt is the cryptographic anchor for everything downstream of
// a commit. Created exactly once, at commit time; never mutated afterward.
type CommitmentReceipt struct {
	TheatreID      string    `json:"theatre_id"`
	CommitmentHash string    `json:"commitment_hash"`
	CommittedAt    time.Time `json:"committed_at"`

	// TemplateSnapshot is a deep copy of the template as committed.
	TemplateSnapshot TheatreTemplate `json:"template_snapshot"`

	VersionPins   map[string]string `json:"version_pins"`
	DatasetHashes map[string]string `json:"dataset_hashes"`
}
