package oracle_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/oracle"
)

// fastPolicy keeps retry waits negligible in tests.
func fastPolicy(retries int) oracle.InvocationPolicy {
	return oracle.InvocationPolicy{
		Timeout:     2 * time.Second,
		RetryCount:  retries,
		BackoffBase: time.Millisecond,
	}
}

func TestNewRequestDefaults(t *testing.T) {
	req := oracle.NewRequest("qa_bot_v1", "ep-1", "qa_bot", map[string]any{"q": "hi"}, oracle.InvocationPolicy{})

	assert.NotEmpty(t, req.InvocationID)
	assert.Equal(t, "qa_bot_v1", req.TheatreID)
	assert.Equal(t, oracle.DefaultTimeout, req.Metadata.Timeout)
	assert.Equal(t, oracle.DefaultRetryCount, req.Metadata.RetryCount)
	assert.Equal(t, oracle.DefaultBackoffBase, req.Metadata.BackoffBase)
}

func TestNewRequestUniqueInvocationIDs(t *testing.T) {
	a := oracle.NewRequest("t", "e", "c", nil, oracle.InvocationPolicy{})
	b := oracle.NewRequest("t", "e", "c", nil, oracle.InvocationPolicy{})
	assert.NotEqual(t, a.InvocationID, b.InvocationID)
}

func TestInvokeSuccess(t *testing.T) {
	inv := oracle.NewInvoker()
	adapter := &oracle.MockAdapter{Output: map[string]any{"answer": "42"}}
	req := oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(1))

	resp, err := inv.Invoke(context.Background(), adapter, req)
	require.NoError(t, err)

	assert.Equal(t, contracts.InvocationSuccess, resp.Status)
	assert.Equal(t, "42", resp.OutputData["answer"])
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, req.InvocationID, resp.InvocationID)
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	calls := 0
	adapter := &oracle.LocalAdapter{
		Fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection reset")
			}
			return map[string]any{"ok": true}, nil
		},
	}

	resp, err := oracle.NewInvoker().Invoke(context.Background(), adapter,
		oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(2)))
	require.NoError(t, err)

	assert.Equal(t, contracts.InvocationSuccess, resp.Status)
	assert.Equal(t, 3, resp.Attempts)
}

func TestInvokeErrorAfterRetriesExhaust(t *testing.T) {
	calls := 0
	adapter := &oracle.LocalAdapter{
		Fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			calls++
			return nil, errors.New("boom")
		},
	}

	resp, err := oracle.NewInvoker().Invoke(context.Background(), adapter,
		oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(2)))
	require.NoError(t, err)

	assert.Equal(t, contracts.InvocationError, resp.Status)
	assert.Contains(t, resp.ErrorDetail, "boom")
	assert.Equal(t, 3, calls, "retry_count 2 means 3 total attempts")
}

func TestInvokeRefusedNeverRetried(t *testing.T) {
	calls := 0
	adapter := &oracle.LocalAdapter{
		Fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			calls++
			return nil, oracle.ErrRefused
		},
	}

	resp, err := oracle.NewInvoker().Invoke(context.Background(), adapter,
		oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(3)))
	require.NoError(t, err)

	assert.Equal(t, contracts.InvocationRefused, resp.Status)
	assert.Equal(t, 1, calls, "refusal is terminal")
	assert.Empty(t, resp.ErrorDetail)
}

func TestInvokeTimeoutNeverRetried(t *testing.T) {
	calls := 0
	adapter := &oracle.LocalAdapter{
		Fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			calls++
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	req := oracle.NewRequest("t", "ep-1", "c", nil, oracle.InvocationPolicy{
		Timeout:     20 * time.Millisecond,
		RetryCount:  3,
		BackoffBase: time.Millisecond,
	})
	resp, err := oracle.NewInvoker().Invoke(context.Background(), adapter, req)
	require.NoError(t, err)

	assert.Equal(t, contracts.InvocationTimeout, resp.Status)
	assert.Equal(t, 1, calls, "timeout is terminal")
}

func TestInvokeRecordsLatency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return now.Add(time.Duration(ticks) * 25 * time.Millisecond)
	}

	inv := oracle.NewInvoker().WithClock(clock)
	resp, err := inv.Invoke(context.Background(), &oracle.MockAdapter{Output: map[string]any{}},
		oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(1)))
	require.NoError(t, err)

	assert.Equal(t, int64(25), resp.LatencyMs)
}

func TestInvokeNilAdapter(t *testing.T) {
	_, err := oracle.NewInvoker().Invoke(context.Background(), nil,
		oracle.NewRequest("t", "ep-1", "c", nil, fastPolicy(1)))
	assert.Error(t, err)
}

func TestHTTPAdapter(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Write([]byte(`{"answer": "paris"}`))
		}))
		defer srv.Close()

		out, err := oracle.NewHTTPAdapter(srv.URL).Invoke(context.Background(), map[string]any{"q": "capital of france"})
		require.NoError(t, err)
		assert.Equal(t, "paris", out["answer"])
	})

	t.Run("409 maps to refusal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		_, err := oracle.NewHTTPAdapter(srv.URL).Invoke(context.Background(), nil)
		assert.ErrorIs(t, err, oracle.ErrRefused)
	})

	t.Run("5xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := oracle.NewHTTPAdapter(srv.URL).Invoke(context.Background(), nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, oracle.ErrRefused)
	})
}
