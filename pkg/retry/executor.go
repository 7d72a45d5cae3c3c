// Package retry re-invokes HTTP operations that fail transiently, waiting
// between attempts according to a backoff strategy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"kernelretry/pkg/logger"
)

// Operation performs a single network call.
type Operation func(ctx context.Context) (*http.Response, error)

// Outcome describes one attempt. It only lives for the duration of the
// retry loop.
type Outcome struct {
	Attempt    int
	Succeeded  bool
	StatusCode int
	Err        error
	Reason     string
	Delay      time.Duration
}

// Decision tells the loop whether to go again and how long to wait first.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Option customizes an Executor
type Option func(*Executor)

// WithSleep replaces the inter-attempt wait. fn must return ctx.Err() when
// ctx is done before d elapses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithClock sets the time source used to resolve HTTP-date Retry-After values.
func WithClock(fn func() time.Time) Option {
	return func(e *Executor) {
		e.now = fn
	}
}

// Executor runs operations under a fixed retry policy. It holds no per-call
// state and is safe for concurrent use.
type Executor struct {
	cfg       Config
	retryable map[int]bool
	log       logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewExecutor validates cfg and returns an executor bound to it. A nil log
// discards events.
func NewExecutor(cfg Config, log logger.Logger, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	codes := make(map[int]bool, len(cfg.RetryableStatusCodes))
	for _, code := range cfg.RetryableStatusCodes {
		codes[code] = true
	}
	cfg.RetryableStatusCodes = append([]int(nil), cfg.RetryableStatusCodes...)

	e := &Executor{
		cfg:       cfg,
		retryable: codes,
		log:       log.WithComponent("retry"),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns a copy of the executor's policy.
func (e *Executor) Config() Config {
	cfg := e.cfg
	cfg.RetryableStatusCodes = append([]int(nil), e.cfg.RetryableStatusCodes...)
	return cfg
}

// Classify turns the result of one attempt into an Outcome.
func (e *Executor) Classify(attempt int, resp *http.Response, err error) Outcome {
	outcome := Outcome{Attempt: attempt}
	if err != nil {
		outcome.Err = err
		outcome.Reason = err.Error()
		return outcome
	}
	if resp == nil {
		outcome.Err = errNoResponse
		outcome.Reason = errNoResponse.Error()
		return outcome
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Succeeded = resp.StatusCode < http.StatusBadRequest
	outcome.Reason = fmt.Sprintf("status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return outcome
}

// Retryable reports whether the outcome is a transient failure.
func (e *Executor) Retryable(o Outcome) bool {
	if o.Err != nil {
		return true
	}
	return e.retryable[o.StatusCode]
}

// Decide computes the retry decision for an outcome. resp is the response
// the outcome was built from, if any.
func (e *Executor) Decide(o Outcome, resp *http.Response) Decision {
	if !e.Retryable(o) || o.Attempt >= e.cfg.MaxAttempts {
		return Decision{}
	}
	return Decision{
		Retry: true,
		Delay: Delay(e.cfg, o.Attempt, resp, e.now()),
	}
}

// Execute invokes op until it succeeds, fails with a non-retryable result or
// MaxAttempts is reached. The last response or error is returned unchanged.
// Cancelling ctx aborts the loop with ctx.Err().
func (e *Executor) Execute(ctx context.Context, op Operation) (*http.Response, error) {
	operationID := uuid.NewString()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := op(ctx)
		if err != nil {
			discard(resp)
			resp = nil
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}

		outcome := e.Classify(attempt, resp, err)
		decision := e.Decide(outcome, resp)
		if !decision.Retry {
			if e.Retryable(outcome) {
				e.log.Warn("max retry count reached", e.fields(operationID, outcome, map[string]interface{}{
					"attempts": attempt,
				}))
			}
			if outcome.Err != nil {
				return nil, outcome.Err
			}
			return resp, nil
		}

		outcome.Delay = decision.Delay
		e.log.Warn("retrying request", e.fields(operationID, outcome, map[string]interface{}{
			"delay_ms": outcome.Delay.Milliseconds(),
		}))

		discard(resp)
		if err := e.sleep(ctx, outcome.Delay); err != nil {
			return nil, err
		}
	}
}

func (e *Executor) fields(operationID string, o Outcome, extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"operation_id": operationID,
		"attempt":      o.Attempt,
		"max_attempts": e.cfg.MaxAttempts,
		"strategy":     e.cfg.Strategy.String(),
		"reason":       o.Reason,
	}
	if o.StatusCode != 0 {
		fields["status_code"] = o.StatusCode
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

var errNoResponse = errors.New("operation returned neither response nor error")

// discard drains and closes a response that will not be handed to the caller
// so the underlying connection can be reused.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
