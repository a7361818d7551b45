package contracts

import (
	"fmt"
	"math"
)

// WeightSumTolerance is the accepted deviation of the weight sum from 1.0.
const WeightSumTolerance = 1e-6

// TheatreCriteria is the scoring contract for a Theatre.
//
// An empty Weights map is valid and means "equal-weight fallback": the
// fallback is computed at scoring time and never stored back into the
// criteria.
type TheatreCriteria struct {
	CriteriaIDs   []string           `json:"criteria_ids"`
	CriteriaHuman string             `json:"criteria_human,omitempty"`
	Weights       map[string]float64 `json:"weights,omitempty"`
}

// Validate enforces the criteria invariants:
//   - CriteriaIDs non-empty and unique
//   - every Weights key is a member of CriteriaIDs
//   - non-empty Weights sum to 1.0 within WeightSumTolerance
func (c TheatreCriteria) Validate() error {
	if len(c.CriteriaIDs) == 0 {
		return fmt.Errorf("criteria: criteria_ids must be non-empty")
	}
	seen := make(map[string]bool, len(c.CriteriaIDs))
	for _, id := range c.CriteriaIDs {
		if id == "" {
			return fmt.Errorf("criteria: empty criteria id")
		}
		if seen[id] {
			return fmt.Errorf("criteria: duplicate criteria id %q", id)
		}
		seen[id] = true
	}

	if len(c.Weights) == 0 {
		return nil // equal-weight fallback, resolved at scoring time
	}

	sum := 0.0
	for id, w := range c.Weights {
		if !seen[id] {
			return fmt.Errorf("criteria: weight key %q is not a declared criteria id", id)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("criteria: weight for %q is not finite", id)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("criteria: weights sum to %v, want 1.0 within %v", sum, WeightSumTolerance)
	}
	return nil
}

// EffectiveWeights resolves the weights actually used for aggregation.
// With an empty Weights map every declared criterion gets 1/n. The result is
// always a fresh map; the stored criteria are never mutated.
func (c TheatreCriteria) EffectiveWeights() map[string]float64 {
	out := make(map[string]float64, len(c.CriteriaIDs))
	if len(c.Weights) == 0 {
		if len(c.CriteriaIDs) == 0 {
			return out
		}
		eq := 1.0 / float64(len(c.CriteriaIDs))
		for _, id := range c.CriteriaIDs {
			out[id] = eq
		}
		return out
	}
	for id, w := range c.Weights {
		out[id] = w
	}
	return out
}

// Clone returns a deep copy of the criteria.
func (c TheatreCriteria) Clone() TheatreCriteria {
	out := TheatreCriteria{
		CriteriaIDs:   append([]string(nil), c.CriteriaIDs...),
		CriteriaHuman: c.CriteriaHuman,
	}
	if c.Weights != nil {
		out.Weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			out.Weights[k] = v
		}
	}
	return out
}
