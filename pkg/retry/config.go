package retry

import (
	"fmt"
	"net/http"
	"time"
)

// DemoStatusCodes is the policy used by the sample kernel application: rate
// limiting plus 401 so that a wrong API key triggers visible retries.
// 401 is an auth failure, not a transient one; production callers should stick
// to DefaultConfig or pass their own set.
var DemoStatusCodes = []int{http.StatusTooManyRequests, http.StatusUnauthorized}

// Config configuration for retrying operations
type Config struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
	// MaxDelay caps exponential growth. Zero means uncapped.
	MaxDelay             time.Duration
	RetryableStatusCodes []int
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          3,
		Strategy:             Exponential,
		BaseDelay:            2 * time.Second,
		RetryableStatusCodes: []int{http.StatusTooManyRequests},
	}
}

// Validate checks that the configuration can drive an executor
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return NewConfigError("MaxAttempts", c.MaxAttempts, "must be at least 1")
	}
	if !c.Strategy.valid() {
		return NewConfigError("Strategy", int(c.Strategy), "unknown backoff strategy")
	}
	if c.BaseDelay < 0 {
		return NewConfigError("BaseDelay", c.BaseDelay, "must not be negative")
	}
	if c.MaxDelay < 0 {
		return NewConfigError("MaxDelay", c.MaxDelay, "must not be negative")
	}
	for _, code := range c.RetryableStatusCodes {
		if code < 100 || code > 599 {
			return NewConfigError("RetryableStatusCodes", code, "not an HTTP status code")
		}
	}
	return nil
}

// ConfigError describes an invalid retry configuration field.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid retry config field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) error {
	return &ConfigError{Field: field, Value: value, Message: message}
}
