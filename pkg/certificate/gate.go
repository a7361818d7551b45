package certificate

import (
	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/tiers"
)

// ReviewPreference is what a caller asks for when submitting work backed by
// a certificate.
type ReviewPreference string

const (
	ReviewFull ReviewPreference = "FULL_REVIEW"
	ReviewSkip ReviewPreference = "SKIP_REVIEW"
)

// ConstraintGate resolves review-skip requests against a certificate's tier.
//
// UNVERIFIED certificates always force full review regardless of the
// caller's stated preference; BACKTESTED and PROVEN pass the preference
// through unchanged. The gate never upgrades a preference on its own.
type ConstraintGate struct{}

// Resolve returns the effective review preference.
func (ConstraintGate) Resolve(cert *contracts.TheatreCalibrationCertificate, requested ReviewPreference) ReviewPreference {
	if cert == nil {
		return ReviewFull
	}
	def := tiers.Get(cert.VerificationTier)
	if def == nil || !def.ReviewSkippable {
		return ReviewFull
	}
	return requested
}
