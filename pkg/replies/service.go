package replies

import (
	"fmt"
	"math/rand"
	"strings"

	"kernelretry/pkg/logger"
)

type Reply struct {
	Text   string
	Author string
}

// Content renders the reply as assistant message content
func (r *Reply) Content() string {
	if r.Author == "" {
		return r.Text
	}
	return fmt.Sprintf("%s (%s)", r.Text, r.Author)
}

// Service produces canned assistant replies
type Service interface {
	Reply(prompt string) *Reply
}

// service for canned replies
type service struct {
	replies []Reply
	log     logger.Logger
}

// NewService new replies service
func NewService(log logger.Logger) Service {
	return NewServiceWith(log, []Reply{
		{Text: "The only true wisdom is in knowing you know nothing.", Author: "Socrates"},
		{Text: "Life is really simple, but we insist on making it complicated.", Author: "Confucius"},
		{Text: "The unexamined life is not worth living.", Author: "Socrates"},
		{Text: "The journey of a thousand miles begins with one step.", Author: "Lao Tzu"},
		{Text: "It does not matter how slowly you go as long as you do not stop.", Author: "Confucius"},
	})
}

// NewServiceWith builds a service over a fixed reply set
func NewServiceWith(log logger.Logger, replies []Reply) Service {
	return &service{
		replies: replies,
		log:     log.WithComponent("replies"),
	}
}

// Reply returns a canned reply. Prompts that ask to echo get their own text back.
func (s *service) Reply(prompt string) *Reply {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(prompt), "echo:"); ok {
		return &Reply{Text: strings.TrimSpace(rest)}
	}

	if len(s.replies) == 0 {
		s.log.Error("reply collection is empty", nil, nil)
		return &Reply{
			Text:   "No replies available",
			Author: "System",
		}
	}

	reply := s.replies[rand.Intn(len(s.replies))]
	s.log.Debug("returning reply", map[string]interface{}{
		"author": reply.Author,
	})
	return &reply
}

// Count returns the number of canned replies
func (s *service) Count() int {
	return len(s.replies)
}
