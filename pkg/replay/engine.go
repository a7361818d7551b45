// Package replay drives a committed dataset of ground-truth episodes through
// an oracle adapter and a scoring provider, producing the calibration
// evidence behind a certificate.
//
// Episodes are processed strictly in order, never concurrently. Replay
// output feeds a trust certificate and must be reproducible run-to-run for
// audit: determinism beats throughput here. The only suspension point is
// inside a single oracle invocation (its timeout and retry cycle).
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/observability"
	"github.com/Calibrant-Labs/theatre/core/pkg/oracle"
	"github.com/Calibrant-Labs/theatre/core/pkg/scoring"
)

// EngineState is the lifecycle of one replay pass.
type EngineState string

const (
	StateNotStarted   EngineState = "NOT_STARTED"
	StateRunning      EngineState = "RUNNING"
	StateCompleted    EngineState = "COMPLETED"
	StateHashMismatch EngineState = "HASH_MISMATCH"
)

// DatasetHashMismatchError is fatal to an entire replay: zero episodes are
// processed. It is a distinct type so callers can tell "data drifted" apart
// from "oracle is flaky".
type DatasetHashMismatchError struct {
	TheatreID string
	DatasetID string
	Expected  string
	Actual    string
}

func (e *DatasetHashMismatchError) Error() string {
	return fmt.Sprintf("replay: theatre %q dataset %q hash mismatch: committed %s, got %s",
		e.TheatreID, e.DatasetID, e.Expected, e.Actual)
}

// ProgressFunc is invoked synchronously inline after each episode. It is the
// sole concurrency-adjacent hook of the engine; no separate goroutine.
type ProgressFunc func(completed, total int)

// InvocationRecorderFunc receives every request/response envelope as it
// happens, in episode order. This is how a replay run feeds
// invocations/{episode_id}.json in the evidence bundle; without a recorder
// the envelopes are dropped after scoring.
type InvocationRecorderFunc func(req contracts.OracleInvocationRequest, resp contracts.OracleInvocationResponse)

// Engine executes replay passes. One Engine may serve many independent
// Theatres; it holds no per-run mutable state between calls.
type Engine struct {
	invoker  *oracle.Invoker
	adapter  oracle.Adapter
	scorer   *scoring.Provider
	policy   oracle.InvocationPolicy
	progress ProgressFunc
	recorder InvocationRecorderFunc
	obs      *observability.Provider
	logger   *slog.Logger
	clock    func() time.Time
}

// NewEngine creates a replay engine bound to an oracle adapter and a scoring
// provider.
func NewEngine(adapter oracle.Adapter, scorer *scoring.Provider) *Engine {
	return &Engine{
		invoker: oracle.NewInvoker(),
		adapter: adapter,
		scorer:  scorer,
		logger:  slog.Default().With("component", "replay"),
		clock:   time.Now,
	}
}

// WithInvoker replaces the default oracle invoker (rate limits, test clocks).
func (e *Engine) WithInvoker(inv *oracle.Invoker) *Engine {
	e.invoker = inv
	return e
}

// WithPolicy sets the per-invocation timeout/retry policy.
func (e *Engine) WithPolicy(p oracle.InvocationPolicy) *Engine {
	e.policy = p
	return e
}

// WithProgress registers the progress callback.
func (e *Engine) WithProgress(fn ProgressFunc) *Engine {
	e.progress = fn
	return e
}

// WithInvocationRecorder registers a synchronous observer for every oracle
// request/response pair, typically evidence.Builder.WriteInvocation.
func (e *Engine) WithInvocationRecorder(fn InvocationRecorderFunc) *Engine {
	e.recorder = fn
	return e
}

// WithObservability attaches telemetry. Nil-safe; default is none.
func (e *Engine) WithObservability(obs *observability.Provider) *Engine {
	e.obs = obs
	return e
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ComputeDatasetHash hashes the full ordered episode list. Order matters:
// reordering episodes is a different dataset.
func ComputeDatasetHash(episodes []contracts.GroundTruthEpisode) (string, error) {
	return canonicalize.CanonicalHash(episodes)
}

// Run replays the dataset against the commitment receipt.
//
// The dataset-hash gate runs before the first episode: the computed hash of
// the ordered episode list must equal the hash committed for the template's
// replay dataset, or the whole replay fails with DatasetHashMismatchError
// and zero episodes processed.
func (e *Engine) Run(ctx context.Context, receipt *contracts.CommitmentReceipt, episodes []contracts.GroundTruthEpisode) (*contracts.ReplayResult, error) {
	if receipt == nil {
		return nil, fmt.Errorf("replay: nil commitment receipt")
	}
	if len(episodes) == 0 {
		return nil, fmt.Errorf("replay: theatre %q: empty dataset", receipt.TheatreID)
	}

	tpl := receipt.TemplateSnapshot
	datasetID := tpl.ReplayDatasetID
	declared, ok := receipt.DatasetHashes[datasetID]
	if !ok {
		return nil, fmt.Errorf("replay: theatre %q: no committed hash for dataset %q", receipt.TheatreID, datasetID)
	}

	actual, err := ComputeDatasetHash(episodes)
	if err != nil {
		return nil, fmt.Errorf("replay: dataset hash: %w", err)
	}
	if actual != declared {
		e.obs.RecordReplay(ctx, receipt.TheatreID, string(StateHashMismatch))
		return nil, &DatasetHashMismatchError{
			TheatreID: receipt.TheatreID,
			DatasetID: datasetID,
			Expected:  declared,
			Actual:    actual,
		}
	}

	ctx, span := e.obs.StartSpan(ctx, "theatre.replay",
		attribute.String("theatre.id", receipt.TheatreID),
		attribute.Int("dataset.episodes", len(episodes)),
	)
	defer span.End()

	result := &contracts.ReplayResult{
		TheatreID:   receipt.TheatreID,
		Episodes:    make([]contracts.EpisodeResult, 0, len(episodes)),
		DatasetHash: actual,
		ReplayCount: len(episodes),
	}

	total := len(episodes)
	for i := range episodes {
		ep := &episodes[i]
		er, err := e.runEpisode(ctx, receipt, ep)
		if err != nil {
			// Caller mistakes only (nil adapter, scorer wiring); transient
			// oracle failures never surface here.
			return nil, fmt.Errorf("replay: episode %q: %w", ep.EpisodeID, err)
		}
		result.Episodes = append(result.Episodes, er)

		switch er.Status {
		case contracts.InvocationRefused:
			result.RefusedCount++
		case contracts.InvocationTimeout, contracts.InvocationError:
			result.FailedCount++
		}

		e.obs.RecordEpisode(ctx, receipt.TheatreID, string(er.Status), time.Duration(er.LatencyMs)*time.Millisecond)
		if e.progress != nil {
			e.progress(i+1, total)
		}
	}

	aggregate(result, tpl.Criteria)

	e.logger.Info("replay completed",
		"theatre_id", receipt.TheatreID,
		"episodes", total,
		"refused", result.RefusedCount,
		"failed", result.FailedCount,
		"composite", result.CompositeScore,
		"failure_rate", result.FailureRate,
	)
	e.obs.RecordReplay(ctx, receipt.TheatreID, string(StateCompleted))
	return result, nil
}

func (e *Engine) runEpisode(ctx context.Context, receipt *contracts.CommitmentReceipt, ep *contracts.GroundTruthEpisode) (contracts.EpisodeResult, error) {
	tpl := receipt.TemplateSnapshot
	req := oracle.NewRequest(receipt.TheatreID, ep.EpisodeID, tpl.ConstructID, ep.InputData, oracle.InvocationPolicy{
		Timeout:       e.policy.Timeout,
		RetryCount:    e.policy.RetryCount,
		BackoffBase:   e.policy.BackoffBase,
		Deterministic: e.policy.Deterministic,
		SanitizeInput: e.policy.SanitizeInput,
	})

	resp, err := e.invoker.Invoke(ctx, e.adapter, req)
	if err != nil {
		return contracts.EpisodeResult{}, err
	}
	if e.recorder != nil {
		e.recorder(req, resp)
	}

	er := contracts.EpisodeResult{
		EpisodeID:   ep.EpisodeID,
		Status:      resp.Status,
		LatencyMs:   resp.LatencyMs,
		ErrorDetail: resp.ErrorDetail,
	}

	switch resp.Status {
	case contracts.InvocationSuccess:
		er.Output = resp.OutputData
		scores, err := e.scorer.ScoreEpisode(ctx, tpl.Criteria, ep, resp.OutputData)
		if err != nil {
			return contracts.EpisodeResult{}, err
		}
		er.Scores = scores
	case contracts.InvocationRefused:
		// Deliberate refusal: excluded from scoring entirely, preserved in
		// the audit trail.
		er.ExcludedFromScoring = true
	case contracts.InvocationTimeout, contracts.InvocationError:
		// Counts against the composite: all-zero scores for every criterion.
		er.Scores = make(map[string]float64, len(tpl.Criteria.CriteriaIDs))
		for _, id := range tpl.Criteria.CriteriaIDs {
			er.Scores[id] = 0
		}
	}
	return er, nil
}

// aggregate fills in per-criterion means, composite score, and failure rate.
func aggregate(result *contracts.ReplayResult, criteria contracts.TheatreCriteria) {
	scored := 0
	sums := make(map[string]float64, len(criteria.CriteriaIDs))
	for _, er := range result.Episodes {
		if er.ExcludedFromScoring {
			continue
		}
		scored++
		for _, id := range criteria.CriteriaIDs {
			sums[id] += er.Scores[id] // absent -> 0, missing counts against
		}
	}

	result.PerCriterionScores = make(map[string]float64, len(criteria.CriteriaIDs))
	if scored > 0 {
		for _, id := range criteria.CriteriaIDs {
			result.PerCriterionScores[id] = sums[id] / float64(scored)
		}
	} else {
		for _, id := range criteria.CriteriaIDs {
			result.PerCriterionScores[id] = 0
		}
	}

	result.CompositeScore = scoring.Composite(result.PerCriterionScores, criteria.EffectiveWeights())

	// Denominator excludes refusals. An all-REFUSED dataset has failure rate
	// zero, never a division by zero.
	denom := result.ReplayCount - result.RefusedCount
	if denom > 0 {
		result.FailureRate = float64(result.FailedCount) / float64(denom)
	}
}
