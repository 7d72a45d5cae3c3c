package protocol

import (
	"errors"
)

// Protocol constants
const (
	MaxMessageSize   = 1 << 20 // 1MB max request body
	ObjectCompletion = "chat.completion"

	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	FinishReasonStop = "stop"
)

// Error types reported in ErrorBody.Type
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypePermission     = "permission_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeOverloaded     = "overloaded_error"
)

// PayloadProvider interface for message payloads
type PayloadProvider interface {
	Validate() error
}

// Possible errors
var (
	ErrMessageTooLarge = errors.New("message exceeds max size")
	ErrInvalidPayload  = errors.New("invalid payload")
)

// ChatMessage single conversation turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest body of POST /v1/chat/completions
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// ChatCompletionChoice one generated alternative
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage token accounting
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse successful completion
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ErrorBody error details
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse contains an error
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewError builds an error response
func NewError(errType, code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorBody{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	}
}
