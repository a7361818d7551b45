// Package commitment implements the Theatre commitment protocol.
//
// A commitment hash is SHA-256 over the canonical JSON of
// {dataset_hashes, template, version_pins}. Identical inputs always hash
// identically; changing any single field changes the hash. There is no
// signature: tamper evidence is hash comparison against a previously
// published value.
package commitment

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// composite is the hashed structure. Field order here is irrelevant:
// canonicalization sorts keys.
type composite struct {
	DatasetHashes map[string]string         `json:"dataset_hashes"`
	Template      contracts.TheatreTemplate `json:"template"`
	VersionPins   map[string]string         `json:"version_pins"`
}

// ComputeHash returns the hex SHA-256 commitment hash over the canonical JSON
// of the composite commitment object.
func ComputeHash(datasetHashes map[string]string, template contracts.TheatreTemplate, versionPins map[string]string) (string, error) {
	h, err := canonicalize.CanonicalHash(composite{
		DatasetHashes: datasetHashes,
		Template:      template,
		VersionPins:   versionPins,
	})
	if err != nil {
		return "", fmt.Errorf("commitment: hash failed: %w", err)
	}
	return h, nil
}

// VerifyHash reports whether candidate equals expected. Constant-time to keep
// the comparison honest even though these are public hashes.
func VerifyHash(candidate, expected string) bool {
	if len(candidate) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

// Protocol creates commitment receipts. The clock is injectable for
// deterministic tests.
type Protocol struct {
	clock func() time.Time
}

// NewProtocol creates a commitment protocol with the wall clock.
func NewProtocol() *Protocol {
	return &Protocol{clock: time.Now}
}

// WithClock overrides the clock for testing.
func (p *Protocol) WithClock(clock func() time.Time) *Protocol {
	p.clock = clock
	return p
}

// CreateReceipt computes the commitment hash and bundles it with a deep
// snapshot of the inputs and a timestamp. The receipt is created exactly once
// per commit and never mutated afterward.
func (p *Protocol) CreateReceipt(theatreID string, datasetHashes map[string]string, template contracts.TheatreTemplate, versionPins map[string]string) (*contracts.CommitmentReceipt, error) {
	if theatreID == "" {
		return nil, fmt.Errorf("commitment: theatre id required")
	}
	hash, err := ComputeHash(datasetHashes, template, versionPins)
	if err != nil {
		return nil, err
	}

	snapshot := template.PopulateRuntime(versionPins, datasetHashes)

	return &contracts.CommitmentReceipt{
		TheatreID:        theatreID,
		CommitmentHash:   hash,
		CommittedAt:      p.clock().UTC(),
		TemplateSnapshot: snapshot,
		VersionPins:      snapshot.VersionPins,
		DatasetHashes:    snapshot.DatasetHashes,
	}, nil
}
