package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelretry/pkg/retry"
)

func TestLoadDefaultsMatchDefaultConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("RETRY_STRATEGY", "retry-after")
	t.Setenv("RETRY_BASE_DELAY", "500ms")
	t.Setenv("RETRY_STATUS_CODES", "429,401")
	t.Setenv("CLIENT_BASE_URLS", "http://a:8080/v1,http://b:8081/v1")
	t.Setenv("BACKEND_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, "retry-after", cfg.Retry.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, []int{429, 401}, cfg.Retry.StatusCodes)
	assert.Equal(t, []string{"http://a:8080/v1", "http://b:8081/v1"}, cfg.Client.BaseURLs)
	assert.Equal(t, "sk-test", cfg.Backend.APIKey)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero attempts", "RETRY_MAX_ATTEMPTS", "0"},
		{"unknown strategy", "RETRY_STRATEGY", "fibonacci"},
		{"bad status code", "RETRY_STATUS_CODES", "429,42"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"not a url", "CLIENT_BASE_URLS", "::nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRetryConfigPolicy(t *testing.T) {
	rc := RetryConfig{
		MaxAttempts: 4,
		Strategy:    "exponential",
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		StatusCodes: []int{429, 401},
	}

	policy, err := rc.Policy()
	require.NoError(t, err)
	assert.Equal(t, retry.Config{
		MaxAttempts:          4,
		Strategy:             retry.Exponential,
		BaseDelay:            2 * time.Second,
		MaxDelay:             10 * time.Second,
		RetryableStatusCodes: []int{429, 401},
	}, policy)

	rc.StatusCodes[0] = 500
	assert.Equal(t, 429, policy.RetryableStatusCodes[0])

	_, err = RetryConfig{MaxAttempts: 1, Strategy: "sometimes"}.Policy()
	assert.Error(t, err)

	_, err = RetryConfig{MaxAttempts: 0, Strategy: "none"}.Policy()
	var cfgErr *retry.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy, err := DefaultConfig().Retry.Policy()
	require.NoError(t, err)
	assert.Equal(t, retry.DefaultConfig(), policy)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `max_attempts: 4
strategy: constant
base_delay: 250ms
retryable_status_codes: [429, 401, 503]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	base := DefaultConfig().Retry
	base.MaxDelay = time.Minute

	policy, err := LoadPolicyFile(path, base)
	require.NoError(t, err)
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, "constant", policy.Strategy)
	assert.Equal(t, 250*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, time.Minute, policy.MaxDelay, "keys absent from the file keep the base value")
	assert.Equal(t, []int{429, 401, 503}, policy.StatusCodes)
	assert.Equal(t, []int{429}, base.StatusCodes)
}

func TestLoadPolicyFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPolicyFile(filepath.Join(dir, "missing.yaml"), DefaultConfig().Retry)
	assert.ErrorIs(t, err, os.ErrNotExist)

	malformed := filepath.Join(dir, "malformed.yaml")
	require.NoError(t, os.WriteFile(malformed, []byte("max_attempts: [oops"), 0o600))
	_, err = LoadPolicyFile(malformed, DefaultConfig().Retry)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("max_attempts: 0\n"), 0o600))
	_, err = LoadPolicyFile(invalid, DefaultConfig().Retry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxAttempts")
}
