package completion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kernelretry/pkg/backend"
	"kernelretry/pkg/logger"
	"kernelretry/pkg/replies"
	"kernelretry/pkg/retry"
	"kernelretry/pkg/transport"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) CountTextTokens(text string) int {
	args := m.Called(text)
	return args.Int(0)
}

// countingBackend serves the mock backend and counts completion requests.
// The first failFirst requests are answered with 429 and Retry-After: 0.
func countingBackend(t *testing.T, cfg *backend.Config, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	log := logger.Nop()
	srv := backend.NewServer(cfg, log, replies.NewService(log), context.Background())
	handler := srv.Handler()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= failFirst {
			w.Header().Set("Retry-After", "0")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error","code":"rate_limit_exceeded"}}`))
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func retryingHTTPClient(t *testing.T, cfg retry.Config) *http.Client {
	t.Helper()
	exec, err := retry.NewExecutor(cfg, logger.Nop())
	require.NoError(t, err)
	return transport.NewClient(exec, 5*time.Second)
}

func fastPolicy(attempts int, strategy retry.Strategy, codes ...int) retry.Config {
	return retry.Config{
		MaxAttempts:          attempts,
		Strategy:             strategy,
		BaseDelay:            time.Millisecond,
		RetryableStatusCodes: codes,
	}
}

func TestComplete(t *testing.T) {
	ts, hits := countingBackend(t, &backend.Config{APIKey: "sk-test"}, 0)

	counter := new(mockCounter)
	counter.On("CountTextTokens", "be briefecho: hi kernel").Return(7)

	client := NewClient(Config{
		Name:    "local",
		BaseURL: ts.URL + "/v1",
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	}, retryingHTTPClient(t, fastPolicy(3, retry.Constant, http.StatusTooManyRequests)), logger.Nop(), counter)

	res, err := client.Complete(context.Background(), "echo: hi kernel", "be brief")
	require.NoError(t, err)

	assert.Equal(t, "local", res.Backend)
	assert.Equal(t, "hi kernel", res.Text)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.Equal(t, int64(5), res.PromptTokens)
	assert.Equal(t, int64(2), res.CompletionTokens)
	assert.Equal(t, 7, res.EstimatedPromptTokens)
	assert.Equal(t, int32(1), hits.Load())
	counter.AssertExpectations(t)
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	ts, hits := countingBackend(t, &backend.Config{}, 2)

	client := NewClient(Config{BaseURL: ts.URL + "/v1/", Model: "gpt-4o"},
		retryingHTTPClient(t, fastPolicy(3, retry.RetryAfterHeader, http.StatusTooManyRequests)), logger.Nop(), nil)

	res, err := client.Complete(context.Background(), "echo: third time lucky", "")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", res.Text)
	assert.Equal(t, int32(3), hits.Load())
	assert.Zero(t, res.EstimatedPromptTokens)
}

func TestComplete_RateLimitExhausted(t *testing.T) {
	ts, hits := countingBackend(t, &backend.Config{}, 10)

	client := NewClient(Config{Name: "busy", BaseURL: ts.URL + "/v1", Model: "gpt-4o"},
		retryingHTTPClient(t, fastPolicy(2, retry.Constant, http.StatusTooManyRequests)), logger.Nop(), nil)

	_, err := client.Complete(context.Background(), "hello", "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "busy", apiErr.Backend)
	assert.Equal(t, int32(2), hits.Load())
}

func TestComplete_UnauthorizedDemoPolicy(t *testing.T) {
	ts, hits := countingBackend(t, &backend.Config{APIKey: "sk-right"}, 0)

	client := NewClient(Config{Name: "auth", BaseURL: ts.URL + "/v1", APIKey: "sk-wrong", Model: "gpt-4o"},
		retryingHTTPClient(t, fastPolicy(4, retry.Exponential, retry.DemoStatusCodes...)), logger.Nop(), nil)

	_, err := client.Complete(context.Background(), "hello", "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(4), hits.Load())
	assert.Contains(t, err.Error(), "401")
}

func TestComplete_UnauthorizedNotRetriedByDefault(t *testing.T) {
	ts, hits := countingBackend(t, &backend.Config{APIKey: "sk-right"}, 0)

	client := NewClient(Config{BaseURL: ts.URL + "/v1", APIKey: "sk-wrong", Model: "gpt-4o"},
		retryingHTTPClient(t, fastPolicy(4, retry.Exponential, http.StatusTooManyRequests)), logger.Nop(), nil)

	_, err := client.Complete(context.Background(), "hello", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestComplete_Cancelled(t *testing.T) {
	ts, _ := countingBackend(t, &backend.Config{Latency: time.Hour}, 0)

	client := NewClient(Config{BaseURL: ts.URL + "/v1", Model: "gpt-4o"},
		retryingHTTPClient(t, fastPolicy(3, retry.Constant, http.StatusTooManyRequests)), logger.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, "hello", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMultiComplete(t *testing.T) {
	good, _ := countingBackend(t, &backend.Config{APIKey: "sk-a"}, 1)
	bad, _ := countingBackend(t, &backend.Config{APIKey: "sk-b"}, 0)

	httpClient := retryingHTTPClient(t, fastPolicy(3, retry.Constant, http.StatusTooManyRequests))
	clients := []*Client{
		NewClient(Config{Name: "good", BaseURL: good.URL + "/v1", APIKey: "sk-a", Model: "gpt-4o"}, httpClient, logger.Nop(), nil),
		NewClient(Config{Name: "bad", BaseURL: bad.URL + "/v1", APIKey: "sk-wrong", Model: "gpt-4o"}, httpClient, logger.Nop(), nil),
	}

	results, err := MultiComplete(context.Background(), clients, "echo: fan out", "")
	require.Len(t, results, 2)

	require.NotNil(t, results[0])
	assert.Equal(t, "fan out", results[0].Text)
	assert.Equal(t, "good", results[0].Backend)
	assert.Nil(t, results[1])

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad", apiErr.Backend)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestWithTrailingSlash(t *testing.T) {
	assert.Equal(t, "http://x/v1/", withTrailingSlash("http://x/v1"))
	assert.Equal(t, "http://x/v1/", withTrailingSlash("http://x/v1/"))
	assert.Equal(t, "", withTrailingSlash(""))
}
