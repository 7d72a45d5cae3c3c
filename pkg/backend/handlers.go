package backend

import (
	"bytes"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"kernelretry/pkg/protocol"
)

const defaultModel = "mock-gpt"

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	current := s.currentConns.Add(1)
	defer s.currentConns.Add(-1)

	if s.cfg.MaxConnections > 0 && current > int32(s.cfg.MaxConnections) {
		s.reject(w, r, http.StatusServiceUnavailable, time.Second,
			protocol.NewError(protocol.ErrorTypeOverloaded, "overloaded", "The server is overloaded"))
		return
	}

	client := remoteIP(r)
	if s.lockout != nil {
		if locked, remaining := s.lockout.Locked(client); locked {
			s.reject(w, r, http.StatusForbidden, remaining,
				protocol.NewError(protocol.ErrorTypePermission, "too_many_failed_attempts", "Too many requests with an invalid API key"))
			return
		}
	}

	key := bearerToken(r)
	if s.cfg.APIKey != "" {
		if key != s.cfg.APIKey {
			if s.lockout != nil {
				s.lockout.RegisterFailure(client)
			}
			s.reject(w, r, http.StatusUnauthorized, 0,
				protocol.NewError(protocol.ErrorTypeAuthentication, "invalid_api_key", "Incorrect API key provided"))
			return
		}
		if s.lockout != nil {
			s.lockout.Reset(client)
		}
	}
	if key == "" {
		key = client
	}

	if s.rateLimiter != nil {
		if ok, wait := s.rateLimiter.Allow(key); !ok {
			s.reject(w, r, http.StatusTooManyRequests, wait,
				protocol.NewError(protocol.ErrorTypeRateLimit, "rate_limit_exceeded", "Rate limit reached for requests"))
			return
		}
	}

	if !s.conLimiter.Acquire(key) {
		s.reject(w, r, http.StatusTooManyRequests, time.Second,
			protocol.NewError(protocol.ErrorTypeRateLimit, "too_many_concurrent_requests", "Too many concurrent requests"))
		return
	}
	defer s.conLimiter.Release(key)

	var req protocol.ChatCompletionRequest
	if err := protocol.Decode(r.Body, &req); err != nil {
		s.reject(w, r, http.StatusBadRequest, 0,
			protocol.NewError(protocol.ErrorTypeInvalidRequest, "invalid_request", err.Error()))
		return
	}

	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		select {
		case <-r.Context().Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	prompt := req.LastUserMessage()
	reply := s.replies.Reply(prompt)
	content := reply.Content()

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	completionTokens := len(strings.Fields(content))

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	resp := &protocol.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  protocol.ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []protocol.ChatCompletionChoice{
			{
				Index:        0,
				Message:      protocol.ChatMessage{Role: protocol.RoleAssistant, Content: content},
				FinishReason: protocol.FinishReasonStop,
			},
		},
		Usage: protocol.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	s.served.Add(1)
	s.log.Debug("completion served", map[string]interface{}{
		"id":          resp.ID,
		"model":       model,
		"remote_addr": r.RemoteAddr,
	})
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","served":` + strconv.FormatInt(s.served.Load(), 10) + `}`))
}

// reject writes an error body, with Retry-After when wait is positive
func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, wait time.Duration, body *protocol.ErrorResponse) {
	s.rejected.Add(1)

	if wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
	}

	s.log.Info("request rejected", map[string]interface{}{
		"status":      status,
		"code":        body.Error.Code,
		"remote_addr": r.RemoteAddr,
		"retry_after": w.Header().Get("Retry-After"),
	})
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload protocol.PayloadProvider) {
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, payload); err != nil {
		s.log.Error("failed to encode response", err, nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Debug("failed to write response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// retryAfterSeconds rounds up to whole seconds, minimum one
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
