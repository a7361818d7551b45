// Package certificate assigns verification tiers and issues calibration
// certificates.
//
// Tier assignment is a deterministic rule table evaluated top to bottom,
// first match wins. A certificate that fails schema validation is not a
// certificate; it is an error and is never reported as issued.
package certificate

import (
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/tiers"
)

// Assignment thresholds.
const (
	// MinReplayCount is the minimum episode count for BACKTESTED.
	MinReplayCount = 50

	// MaxFailureRate is the inclusive failure-rate ceiling: exactly 0.20 is
	// still eligible for BACKTESTED; anything above caps at UNVERIFIED.
	MaxFailureRate = 0.20

	// MinProvenTelemetryMonths is the sustained-production requirement for
	// PROVEN.
	MinProvenTelemetryMonths = 3
)

// EvidenceFacts are the inputs to tier assignment beyond the replay result
// itself. All of it must be asserted by the caller; the assigner trusts
// nothing implicit.
type EvidenceFacts struct {
	// PinsComplete is true when every construct in the chain has a version pin.
	PinsComplete bool

	// DatasetHashPresent is true when the replay verified a committed dataset hash.
	DatasetHashPresent bool

	// BundleComplete is true when the evidence bundle passed its
	// minimum-files validation.
	BundleComplete bool

	// ScoresComplete is true when every declared criterion has a score.
	ScoresComplete bool

	// UnresolvedDisputes counts open disputes against the theatre.
	UnresolvedDisputes int

	// TelemetryMonths is the count of consecutive months of production
	// telemetry for the construct.
	TelemetryMonths int

	// CommunityAttested is true when the construct carries a community
	// attestation.
	CommunityAttested bool

	// CurrentTier is the construct's standing tier before this run.
	CurrentTier contracts.VerificationTier
}

// AssignTier maps replay statistics and evidence facts to a verification
// tier. Rules, top to bottom, first match wins:
//
//  1. replay_count < 50, failure_rate > 0.20, incomplete pins/scores/hash,
//     or any unresolved dispute                          -> UNVERIFIED
//  2. replay_count >= 50 and full evidence present       -> BACKTESTED
//  3. >= 3 months telemetry, community attestation, and
//     already at least BACKTESTED                        -> PROVEN
//
// Rule 3 upgrades rule 2's outcome; a run that only satisfies rule 2 stays
// BACKTESTED.
func AssignTier(result *contracts.ReplayResult, facts EvidenceFacts) contracts.VerificationTier {
	if result == nil {
		return contracts.TierUnverified
	}
	if result.ReplayCount < MinReplayCount ||
		result.FailureRate > MaxFailureRate ||
		!facts.PinsComplete ||
		!facts.ScoresComplete ||
		!facts.DatasetHashPresent ||
		facts.UnresolvedDisputes > 0 {
		return contracts.TierUnverified
	}
	if !facts.BundleComplete {
		return contracts.TierUnverified
	}

	tier := contracts.TierBacktested
	if facts.TelemetryMonths >= MinProvenTelemetryMonths &&
		facts.CommunityAttested &&
		tiers.AtLeast(facts.CurrentTier, contracts.TierBacktested) {
		tier = contracts.TierProven
	}
	return tier
}

// ExpiryFor computes the expiry timestamp for a tier issued at issuedAt.
// UNVERIFIED never expires (nil): it makes no positive claim.
func ExpiryFor(tier contracts.VerificationTier, issuedAt time.Time) *time.Time {
	def := tiers.Get(tier)
	if def == nil || def.Validity == 0 {
		return nil
	}
	t := issuedAt.Add(def.Validity)
	return &t
}
