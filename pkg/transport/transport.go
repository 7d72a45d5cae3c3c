package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"kernelretry/pkg/retry"
)

// Transport sends every request through a retry.Executor.
type Transport struct {
	base http.RoundTripper
	exec *retry.Executor
}

var _ http.RoundTripper = (*Transport)(nil)

// New wraps base. A nil base uses http.DefaultTransport.
func New(base http.RoundTripper, exec *retry.Executor) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base: base,
		exec: exec,
	}
}

// NewClient returns an http.Client whose requests are retried by exec.
func NewClient(exec *retry.Executor, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: New(nil, exec),
		Timeout:   timeout,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := rewindableBody(req)
	if err != nil {
		return nil, err
	}

	return t.exec.Execute(req.Context(), func(ctx context.Context) (*http.Response, error) {
		attempt := req.Clone(ctx)
		if getBody != nil {
			body, err := getBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			attempt.Body = body
		}
		return t.base.RoundTrip(attempt)
	})
}

// rewindableBody returns a function producing a fresh copy of the request
// body for every attempt. Bodies without GetBody are read into memory once.
// Either way the original body is closed.
func rewindableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		// every attempt sends a copy, the caller's body is never read
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}
