package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// Invocation policy defaults per the engine contract.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultRetryCount  = 2
	DefaultBackoffBase = 5 * time.Second
)

// Invoker wraps an Adapter with timeout, retry/backoff, and latency
// accounting. It is purely functional: no side effects beyond the adapter
// call itself.
type Invoker struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewInvoker creates an invoker.
func NewInvoker() *Invoker {
	return &Invoker{
		logger: slog.Default().With("component", "oracle"),
		clock:  time.Now,
	}
}

// WithRateLimit bounds invocation throughput. Useful when the construct under
// test is a shared service; nil-safe default is unlimited.
func (inv *Invoker) WithRateLimit(limiter *rate.Limiter) *Invoker {
	inv.limiter = limiter
	return inv
}

// WithClock overrides the clock for testing.
func (inv *Invoker) WithClock(clock func() time.Time) *Invoker {
	inv.clock = clock
	return inv
}

// NewRequest builds a standardized invocation request with a fresh
// invocation id and defaulted metadata.
func NewRequest(theatreID, episodeID, constructID string, input map[string]any, meta InvocationPolicy) contracts.OracleInvocationRequest {
	return contracts.OracleInvocationRequest{
		InvocationID: uuid.New().String(),
		TheatreID:    theatreID,
		EpisodeID:    episodeID,
		ConstructID:  constructID,
		InputData:    input,
		Metadata: contracts.InvocationMetadata{
			Timeout:       meta.timeoutOrDefault(),
			RetryCount:    meta.retryCountOrDefault(),
			BackoffBase:   meta.backoffBaseOrDefault(),
			Deterministic: meta.Deterministic,
			SanitizeInput: meta.SanitizeInput,
		},
	}
}

// InvocationPolicy configures a request's timeout/retry behavior. Zero
// values select the engine defaults.
type InvocationPolicy struct {
	Timeout       time.Duration
	RetryCount    int
	BackoffBase   time.Duration
	Deterministic bool
	SanitizeInput bool
}

func (p InvocationPolicy) timeoutOrDefault() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p InvocationPolicy) retryCountOrDefault() int {
	if p.RetryCount < 0 {
		return DefaultRetryCount
	}
	if p.RetryCount == 0 {
		return DefaultRetryCount
	}
	return p.RetryCount
}

func (p InvocationPolicy) backoffBaseOrDefault() time.Duration {
	if p.BackoffBase <= 0 {
		return DefaultBackoffBase
	}
	return p.BackoffBase
}

// timeoutError marks an attempt that exceeded its deadline so the outer
// response can carry TIMEOUT instead of ERROR.
type timeoutError struct{ cause error }

func (e *timeoutError) Error() string { return "oracle: invocation timed out: " + e.cause.Error() }
func (e *timeoutError) Unwrap() error { return e.cause }

// Invoke executes the request against the adapter and always returns a
// response envelope, never an error for per-invocation outcomes. The error
// return is reserved for caller mistakes (nil adapter).
//
// Outcome mapping:
//   - adapter success                  -> SUCCESS with output
//   - attempt deadline exceeded        -> TIMEOUT, no retry
//   - ErrRefused from the adapter     -> REFUSED, no retry
//   - anything else                    -> retried with exponential backoff,
//     ERROR with detail once retries exhaust
//
// LatencyMs covers the full wrapper run including backoff waits, recorded on
// every outcome.
func (inv *Invoker) Invoke(ctx context.Context, adapter Adapter, req contracts.OracleInvocationRequest) (contracts.OracleInvocationResponse, error) {
	if adapter == nil {
		return contracts.OracleInvocationResponse{}, errors.New("oracle: nil adapter")
	}

	timeout := req.Metadata.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := req.Metadata.RetryCount
	if retries <= 0 {
		retries = DefaultRetryCount
	}
	base := req.Metadata.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}

	resp := contracts.OracleInvocationResponse{InvocationID: req.InvocationID}
	start := inv.clock()
	attempts := 0

	operation := func() (map[string]any, error) {
		attempts++
		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := adapter.Invoke(attemptCtx, req.InputData)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrRefused) {
			return nil, backoff.Permanent(ErrRefused)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, backoff.Permanent(&timeoutError{cause: err})
		}
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = base
	expo.Multiplier = 2
	expo.RandomizationFactor = 0 // deterministic wait sequence: base, 2*base, ...
	expo.MaxInterval = base * 16

	output, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(retries+1)),
	)

	resp.LatencyMs = inv.clock().Sub(start).Milliseconds()
	resp.Attempts = attempts

	switch {
	case err == nil:
		resp.Status = contracts.InvocationSuccess
		resp.OutputData = output
	case errors.Is(err, ErrRefused):
		resp.Status = contracts.InvocationRefused
	case isTimeout(err):
		resp.Status = contracts.InvocationTimeout
	default:
		resp.Status = contracts.InvocationError
		resp.ErrorDetail = err.Error()
	}

	inv.logger.Debug("oracle invocation finished",
		"invocation_id", req.InvocationID,
		"episode_id", req.EpisodeID,
		"status", string(resp.Status),
		"attempts", attempts,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

func isTimeout(err error) bool {
	var te *timeoutError
	return errors.As(err, &te)
}
