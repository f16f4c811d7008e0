package session

import (
	"context"

	"github.com/ashureev/for-the-record/internal/agent"
	"github.com/ashureev/for-the-record/internal/domain"
)

// Converser asks the conversational model for the next step.
type Converser interface {
	Converse(ctx context.Context, req agent.Request) (*agent.Reply, error)
}

// CaptureHandlers receive speech capture results. Partial text is the
// accumulated transcript so far, not a delta.
type CaptureHandlers struct {
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(err error)
}

// Capture is a speech-to-text source.
//
// Start begins capture and returns once capture is armed; results arrive later
// through the handlers. Stop ends capture and returns the text accumulated so
// far. Stop must not block and must not invoke the handlers synchronously.
type Capture interface {
	Start(ctx context.Context, h CaptureHandlers) error
	Stop() string
}

// Playback speaks text aloud.
//
// Speak returns when playback has ended or failed; it must return promptly once
// ctx is done. Stop cancels any in-flight playback and must not block.
type Playback interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// StoryStore persists finished stories for a user.
type StoryStore interface {
	CreateStory(ctx context.Context, userID string, story *domain.Story) (string, error)
}

// Metrics receives session lifecycle counters.
type Metrics interface {
	RecordTransition(from, to string)
	RecordStorySaved()
	RecordSpeechFailure()
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(string, string) {}
func (noopMetrics) RecordStorySaved()               {}
func (noopMetrics) RecordSpeechFailure()            {}
