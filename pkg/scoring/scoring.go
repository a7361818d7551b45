// Package scoring evaluates oracle outputs against ground truth.
//
// Scoring functions are a capability, not a concrete class: an LLM judge and
// a pure-arithmetic policy check satisfy the identical interface and are
// selected by configuration at commit time, never by runtime type
// inspection.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// Function scores one criterion for one episode. Implementations return a
// value nominally in [0,1]; the provider clamps out-of-range values rather
// than trusting the scorer.
type Function interface {
	Score(ctx context.Context, criteriaID string, groundTruth *contracts.GroundTruthEpisode, oracleOutput map[string]any) (float64, error)
}

// Provider drives a Function across all criteria of an episode.
type Provider struct {
	fn Function
}

// NewProvider creates a scoring provider around fn.
func NewProvider(fn Function) *Provider {
	return &Provider{fn: fn}
}

// ScoreEpisode returns a map of criteria_id -> clamped score in [0,1].
// A scorer error for a criterion fails the whole episode scoring: a partial
// score map would silently skew the composite.
func (p *Provider) ScoreEpisode(ctx context.Context, criteria contracts.TheatreCriteria, groundTruth *contracts.GroundTruthEpisode, oracleOutput map[string]any) (map[string]float64, error) {
	if p.fn == nil {
		return nil, fmt.Errorf("scoring: no scoring function configured")
	}
	scores := make(map[string]float64, len(criteria.CriteriaIDs))
	for _, id := range criteria.CriteriaIDs {
		s, err := p.fn.Score(ctx, id, groundTruth, oracleOutput)
		if err != nil {
			return nil, fmt.Errorf("scoring: criterion %q: %w", id, err)
		}
		scores[id] = Clamp(s)
	}
	return scores, nil
}

// Clamp forces a score into [0,1]. Non-finite values collapse to 0: a scorer
// emitting NaN has said nothing trustworthy about quality.
func Clamp(s float64) float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Composite computes the weighted mean of scores. When weights is empty it
// falls back to equal weighting across the criteria actually scored. A
// criterion with a weight but no emitted score counts as 0.0: missing
// counts against the construct.
func Composite(scores map[string]float64, weights map[string]float64) float64 {
	if len(weights) == 0 {
		if len(scores) == 0 {
			return 0
		}
		sum := 0.0
		for _, s := range scores {
			sum += Clamp(s)
		}
		return sum / float64(len(scores))
	}

	total := 0.0
	weightSum := 0.0
	for id, w := range weights {
		weightSum += w
		if s, ok := scores[id]; ok {
			total += w * Clamp(s)
		}
		// absent score contributes 0
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}
