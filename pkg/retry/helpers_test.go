package retry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"kernelretry/pkg/logger"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

// recordingLogger keeps every entry so tests can assert on the sink.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) add(level, msg string, fields map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (r *recordingLogger) Debug(msg string, fields map[string]interface{}) { r.add("debug", msg, fields) }
func (r *recordingLogger) Info(msg string, fields map[string]interface{})  { r.add("info", msg, fields) }
func (r *recordingLogger) Warn(msg string, fields map[string]interface{})  { r.add("warn", msg, fields) }
func (r *recordingLogger) Error(msg string, err error, fields map[string]interface{}) {
	r.add("error", msg, fields)
}
func (r *recordingLogger) Fatal(msg string, err error, fields map[string]interface{}) {
	r.add("fatal", msg, fields)
}
func (r *recordingLogger) WithComponent(component string) logger.Logger {
	return r
}
func (r *recordingLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return r
}

func (r *recordingLogger) messages(msg string) []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []logEntry
	for _, e := range r.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func response(status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("body")),
	}
}

// countingOp returns the status sequence in order, repeating the last one.
func countingOp(calls *int, statuses ...int) Operation {
	return func(ctx context.Context) (*http.Response, error) {
		idx := *calls
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		*calls++
		return response(statuses[idx], nil), nil
	}
}
