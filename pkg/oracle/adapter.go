// Package oracle defines the invocation contract between the Theatre Engine
// and any construct under test.
//
// The engine never knows what an oracle is (HTTP service, in-process
// callable, LLM), only that it satisfies Adapter. The Invoker wraps any
// Adapter with timeout, bounded retry with exponential backoff, and latency
// accounting, and translates outcomes into the standardized response
// envelope.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRefused is returned by an adapter when the construct explicitly
// declines to answer. A refusal is deliberate and terminal: it is never
// retried and never scored.
var ErrRefused = errors.New("oracle: construct refused invocation")

// Adapter is the capability an oracle implementation must satisfy.
type Adapter interface {
	// Kind identifies the adapter class ("http", "local", "mock"), matched
	// against the template's oracle_adapter field at commit time.
	Kind() string

	// Invoke runs the construct on input and returns structured output.
	// Implementations must honor ctx cancellation and deadlines.
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)
}

// HTTPAdapter invokes a construct over HTTP: input is POSTed as JSON, the
// response body is the structured output. A 409 response is interpreted as a
// deliberate refusal.
type HTTPAdapter struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPAdapter creates an HTTP adapter with a default client. The invoker
// owns timeouts, so the client itself carries none.
func NewHTTPAdapter(endpoint string) *HTTPAdapter {
	return &HTTPAdapter{Endpoint: endpoint, Client: &http.Client{}}
}

func (a *HTTPAdapter) Kind() string { return "http" }

func (a *HTTPAdapter) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: http call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrRefused
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oracle: http status %d: %s", resp.StatusCode, string(data))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("oracle: decode output: %w", err)
	}
	return out, nil
}

// LocalAdapter wraps an in-process callable.
type LocalAdapter struct {
	Fn func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (a *LocalAdapter) Kind() string { return "local" }

func (a *LocalAdapter) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	if a.Fn == nil {
		return nil, errors.New("oracle: local adapter has no function bound")
	}
	return a.Fn(ctx, input)
}

// MockAdapter returns canned outputs for testing. Template validation rejects
// it for certificate-producing runs.
type MockAdapter struct {
	Output map[string]any
	Err    error
	Delay  time.Duration
}

func (a *MockAdapter) Kind() string { return "mock" }

func (a *MockAdapter) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Output, nil
}
