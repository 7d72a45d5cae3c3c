package protocol

import (
	"errors"
	"fmt"
)

// Validate for ChatCompletionRequest
func (p *ChatCompletionRequest) Validate() error {
	if p.Model == "" {
		return errors.New("empty model")
	}
	if len(p.Messages) == 0 {
		return errors.New("no messages")
	}
	for i, m := range p.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	if p.MaxTokens < 0 {
		return errors.New("negative max_tokens")
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return errors.New("temperature out of range")
	}
	return nil
}

// LastUserMessage returns the most recent user turn
func (p *ChatCompletionRequest) LastUserMessage() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// Validate for ChatCompletionResponse
func (p *ChatCompletionResponse) Validate() error {
	if p.ID == "" {
		return errors.New("empty id")
	}
	if len(p.Choices) == 0 {
		return errors.New("no choices")
	}
	return nil
}

// Validate for ErrorResponse
func (p *ErrorResponse) Validate() error {
	if p.Error.Type == "" {
		return errors.New("empty error type")
	}
	if p.Error.Message == "" {
		return errors.New("empty error message")
	}
	return nil
}
