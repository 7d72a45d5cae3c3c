package retry

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Strategy selects how the delay between attempts is computed
type Strategy uint8

const (
	None Strategy = iota
	Constant
	Exponential
	RetryAfterHeader
)

var strategyNames = map[Strategy]string{
	None:             "none",
	Constant:         "constant",
	Exponential:      "exponential",
	RetryAfterHeader: "retry-after",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

func (s Strategy) valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy maps a strategy name to its value, ignoring case.
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "retryafter", "retry_after", "retry-after-header":
		normalized = "retry-after"
	}
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return None, fmt.Errorf("unknown backoff strategy %q", name)
}

// MarshalText lets strategies appear by name in YAML and JSON.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("unknown backoff strategy %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Delay computes the wait before the attempt that follows attempt.
// resp is the response of that attempt and may be nil.
func Delay(cfg Config, attempt int, resp *http.Response, now time.Time) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	switch cfg.Strategy {
	case Constant:
		return cfg.BaseDelay
	case Exponential:
		return exponentialDelay(cfg.BaseDelay, cfg.MaxDelay, attempt)
	case RetryAfterHeader:
		if resp != nil {
			if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), now); ok {
				return d
			}
		}
		return cfg.BaseDelay
	default:
		return 0
	}
}

const maxDuration = time.Duration(math.MaxInt64)

func exponentialDelay(base, limit time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			delay = maxDuration
			break
		}
		delay *= 2
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

// ParseRetryAfter reads a Retry-After value, either delta-seconds or an
// HTTP-date. Dates in the past yield zero; values beyond the range of
// time.Duration saturate.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > int64(maxDuration/time.Second) {
			return maxDuration, true
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
