// Package tiers defines the verification tier ladder for calibration
// certificates. Tiers map to validity windows and review privileges.
package tiers

import (
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// Definition describes one verification tier.
type Definition struct {
	ID          contracts.VerificationTier
	Name        string
	Description string

	// Validity is how long a certificate at this tier stays valid.
	// Zero means never expires: UNVERIFIED is not a positive claim, so
	// there is nothing to expire.
	Validity time.Duration

	// ReviewSkippable is whether the constraint gate may honor a caller's
	// request to skip full review.
	ReviewSkippable bool
}

// The tier ladder.
var (
	Unverified = Definition{
		ID:              contracts.TierUnverified,
		Name:            "Unverified",
		Description:     "No completed calibration evidence, or evidence below threshold",
		Validity:        0,
		ReviewSkippable: false,
	}

	Backtested = Definition{
		ID:              contracts.TierBacktested,
		Name:            "Backtested",
		Description:     "Full replay evidence at or above the replay threshold",
		Validity:        90 * 24 * time.Hour,
		ReviewSkippable: true,
	}

	Proven = Definition{
		ID:              contracts.TierProven,
		Name:            "Proven",
		Description:     "Backtested plus sustained production telemetry and community attestation",
		Validity:        180 * 24 * time.Hour,
		ReviewSkippable: true,
	}

	// All contains every tier keyed by id.
	All = map[contracts.VerificationTier]Definition{
		contracts.TierUnverified: Unverified,
		contracts.TierBacktested: Backtested,
		contracts.TierProven:     Proven,
	}
)

// Get returns a tier definition by id, or nil if not found.
func Get(id contracts.VerificationTier) *Definition {
	def, ok := All[id]
	if !ok {
		return nil
	}
	return &def
}

// AtLeast reports whether tier a ranks at or above tier b.
func AtLeast(a, b contracts.VerificationTier) bool {
	return rank(a) >= rank(b)
}

func rank(t contracts.VerificationTier) int {
	switch t {
	case contracts.TierProven:
		return 2
	case contracts.TierBacktested:
		return 1
	default:
		return 0
	}
}
