package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a JSON payload of at most MaxMessageSize bytes and validates it
func Decode(r io.Reader, v PayloadProvider) error {
	data, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	if len(data) == 0 {
		return ErrInvalidPayload
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := v.Validate(); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}

	return nil
}

// Encode validates and writes a JSON payload
func Encode(w io.Writer, v PayloadProvider) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}
