// Package agent implements Georgia, the conversational interviewer.
package agent

import (
	"errors"
	"time"

	"github.com/ashureev/for-the-record/internal/domain"
)

var (
	// ErrNotConfigured is returned when no model credentials are available.
	ErrNotConfigured = errors.New("conversational model not configured")
	// ErrEmptyReply is returned when the model answers without any text.
	ErrEmptyReply = errors.New("empty reply from conversational model")
)

// Message is one chat message in the model's wire vocabulary.
type Message struct {
	Role    string // user, assistant
	Content string
}

// Request asks Georgia for the next step of an interview.
type Request struct {
	Turns []domain.Turn
	// WrapUp asks for a story instead of another question.
	WrapUp bool
	// ForceStory marks an explicit "end session now"; it implies WrapUp.
	ForceStory bool
}

// Mode labels the request for logs and metrics.
func (r Request) Mode() string {
	switch {
	case r.ForceStory:
		return "force_story"
	case r.WrapUp:
		return "wrap_up"
	default:
		return "converse"
	}
}

// wantsStory reports whether the reply should be parsed as a story.
func (r Request) wantsStory() bool {
	return r.WrapUp || r.ForceStory
}

// Reply is either Georgia's next question or a finished story draft.
type Reply struct {
	Message string             `json:"message,omitempty"`
	Story   *domain.StoryDraft `json:"story,omitempty"`
}

// Config holds agent configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.anthropic.com/v1/",
		Model:     "claude-opus-4-5",
		MaxTokens: 1024,
		Timeout:   30 * time.Second,
	}
}
