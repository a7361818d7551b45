package scoring

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/oracle"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// PolicyScorer is the deterministic arithmetic scorer. For each criterion it
// compares the oracle output field named by the criterion against the
// expected output:
//   - exact structural equality -> 1.0
//   - numeric fields            -> 1 - min(1, |got-want| / max(1,|want|))
//   - missing or mismatched     -> 0.0
//
// A nil expected output means pass-through scoring: any SUCCESS output earns
// full marks. The scorer is a pure function of its inputs.
type PolicyScorer struct{}

func (PolicyScorer) Score(_ context.Context, criteriaID string, gt *contracts.GroundTruthEpisode, out map[string]any) (float64, error) {
	if gt == nil {
		return 0, fmt.Errorf("policy scorer: nil ground truth")
	}
	if gt.ExpectedOutput == nil {
		if out == nil {
			return 0, nil
		}
		return 1, nil
	}

	want, wantOK := gt.ExpectedOutput[criteriaID]
	got, gotOK := out[criteriaID]
	if !wantOK {
		// Criterion not constrained by ground truth: compare whole documents.
		wh, err := canonicalize.CanonicalHash(gt.ExpectedOutput)
		if err != nil {
			return 0, err
		}
		gh, err := canonicalize.CanonicalHash(out)
		if err != nil {
			return 0, err
		}
		if wh == gh {
			return 1, nil
		}
		return 0, nil
	}
	if !gotOK {
		return 0, nil
	}

	if wf, ok := toFloat(want); ok {
		gf, ok := toFloat(got)
		if !ok {
			return 0, nil
		}
		denom := 1.0
		if wf < -1 || wf > 1 {
			denom = abs(wf)
		}
		diff := abs(gf-wf) / denom
		if diff > 1 {
			diff = 1
		}
		return 1 - diff, nil
	}

	if reflect.DeepEqual(want, got) {
		return 1, nil
	}
	return 0, nil
}

// JudgeScorer delegates scoring to a judge construct behind an oracle
// adapter, the LLM-judge variant of the scoring capability. The judge
// receives the criterion, ground truth, and oracle output, and must answer
// with {"score": <number>}.
type JudgeScorer struct {
	Invoker *oracle.Invoker
	Adapter oracle.Adapter

	// TheatreID tags judge invocations for the audit trail.
	TheatreID string
}

func (j *JudgeScorer) Score(ctx context.Context, criteriaID string, gt *contracts.GroundTruthEpisode, out map[string]any) (float64, error) {
	if j.Invoker == nil || j.Adapter == nil {
		return 0, fmt.Errorf("judge scorer: invoker and adapter required")
	}
	input := map[string]any{
		"criteria_id":   criteriaID,
		"oracle_output": out,
	}
	if gt != nil {
		input["episode_id"] = gt.EpisodeID
		input["expected_output"] = gt.ExpectedOutput
		input["metadata"] = gt.Metadata
	}

	episodeID := ""
	if gt != nil {
		episodeID = gt.EpisodeID
	}
	req := oracle.NewRequest(j.TheatreID, episodeID, "judge", input, oracle.InvocationPolicy{})
	resp, err := j.Invoker.Invoke(ctx, j.Adapter, req)
	if err != nil {
		return 0, fmt.Errorf("judge scorer: %w", err)
	}
	if resp.Status != contracts.InvocationSuccess {
		return 0, fmt.Errorf("judge scorer: judge returned %s: %s", resp.Status, resp.ErrorDetail)
	}
	raw, ok := resp.OutputData["score"]
	if !ok {
		return 0, fmt.Errorf("judge scorer: judge output missing score field")
	}
	s, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("judge scorer: score field is %T, want number", raw)
	}
	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
