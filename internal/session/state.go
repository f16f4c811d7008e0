// Package session implements the turn-taking state machine that drives one
// journaling interview from the opening question to a saved story.
package session

import (
	"errors"

	"github.com/ashureev/for-the-record/internal/domain"
)

// State is the single active phase of a session.
type State string

const (
	StateIdle            State = "idle"
	StateAgentSpeaking   State = "agent_speaking"
	StateListening       State = "listening"
	StateProcessing      State = "processing"
	StateGeneratingStory State = "generating_story"
	StateStoryPreview    State = "story_preview"
	StateSaved           State = "saved"
	StateError           State = "error"
)

// States lists every state in protocol order.
var States = []State{
	StateIdle,
	StateAgentSpeaking,
	StateListening,
	StateProcessing,
	StateGeneratingStory,
	StateStoryPreview,
	StateSaved,
	StateError,
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// canBegin reports whether Begin may start a fresh session from s.
func (s State) canBegin() bool {
	switch s {
	case StateIdle, StateSaved, StateError, StateStoryPreview:
		return true
	default:
		return false
	}
}

// WrapUpAfter is the number of user turns after which Georgia is asked for the story.
const WrapUpAfter = 4

// User-facing phrases.
const (
	SavedPhrase       = "Saved. That one's worth keeping."
	MsgConverseFailed = "Something went wrong. Let's try that again."
	MsgStoryFailed    = "Couldn't shape your story. Try again."
	MsgSaveFailed     = "Couldn't save your story. Try again."
)

var (
	// ErrInvalidTransition is returned when an operation is not valid in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNothingToSave is returned by ConfirmSave outside story_preview or without a story.
	ErrNothingToSave = errors.New("no story to save")
	// ErrNoStory records that a forced wrap-up came back without a story.
	ErrNoStory = errors.New("reply did not contain a story")
)

// Snapshot is a copy of the session record safe to hand to other goroutines.
type Snapshot struct {
	Epoch           uint64             `json:"epoch"`
	State           State              `json:"state"`
	Turns           []domain.Turn      `json:"turns"`
	Transcript      string             `json:"transcript"`
	Story           *domain.StoryDraft `json:"story,omitempty"`
	Error           string             `json:"error,omitempty"`
	UserTurns       int                `json:"userTurns"`
	SpeechAvailable bool               `json:"speechAvailable"`
	SpeechError     string             `json:"speechError,omitempty"`
	SavedStoryID    string             `json:"savedStoryId,omitempty"`
}
