// Package speech provides Georgia's voice: a Google Cloud Text-to-Speech client,
// an ordered fallback chain over playback backends and the /api/tts endpoint.
package speech

import (
	"context"
	"errors"
	"unicode/utf8"
)

// MaxTextLength is the longest input, in characters, sent for synthesis.
const MaxTextLength = 5000

var (
	// ErrNotConfigured is returned when no TTS credentials are available.
	ErrNotConfigured = errors.New("text-to-speech not configured")
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("text is required")
	// ErrSpeechUnavailable is returned when every playback backend failed.
	ErrSpeechUnavailable = errors.New("speech output unavailable")
)

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Backend is one way of getting text spoken aloud.
type Backend interface {
	Name() string
	Speak(ctx context.Context, text string) error
	Stop()
}

// Truncate cuts text to MaxTextLength characters.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxTextLength])
}
