package completion

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size before a request is sent.
type TokenCounter interface {
	CountTextTokens(text string) int
}

var encodingBase = "cl100k_base"

// TiktokenCounter counts tokens with the cl100k_base encoding used by the
// GPT-3.5/GPT-4 family.
type TiktokenCounter struct {
	encoder *tiktoken.Tiktoken
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter loads the encoding. The first call may download the BPE
// ranks unless a local cache is configured through TIKTOKEN_CACHE_DIR.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoder, err := tiktoken.GetEncoding(encodingBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TiktokenCounter{encoder: encoder}, nil
}

func (tc *TiktokenCounter) CountTextTokens(text string) int {
	return len(tc.encoder.Encode(text, nil, nil))
}
