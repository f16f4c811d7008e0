// Package story turns model output into story drafts and searches saved stories.
package story

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/for-the-record/internal/domain"
)

// ExtractBlock returns the outermost brace-delimited span of text: everything from
// the first '{' to the last '}'. It reports false when no such span exists.
func ExtractBlock(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseDraft extracts a story draft from text returned at wrap-up. Models often wrap
// the JSON in prose or markdown fences, so only the outermost braces are decoded.
//
// A draft is accepted only when title, body and mood are non-empty strings and both
// threeWords and themes are arrays. Otherwise ParseDraft returns nil, false and the
// caller should treat text as an ordinary conversational reply.
func ParseDraft(text string) (*domain.StoryDraft, bool) {
	block, ok := ExtractBlock(text)
	if !ok {
		return nil, false
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, false
	}

	title, ok := nonEmptyString(raw["title"])
	if !ok {
		return nil, false
	}
	body, ok := nonEmptyString(raw["body"])
	if !ok {
		return nil, false
	}
	mood, ok := nonEmptyString(raw["mood"])
	if !ok {
		return nil, false
	}
	words, ok := raw["threeWords"].([]any)
	if !ok {
		return nil, false
	}
	themes, ok := raw["themes"].([]any)
	if !ok {
		return nil, false
	}

	draft := &domain.StoryDraft{
		Title:  title,
		Body:   body,
		Mood:   mood,
		Themes: make([]string, 0, len(themes)),
	}
	for i := range draft.ThreeWords {
		if i < len(words) {
			draft.ThreeWords[i] = asText(words[i])
		}
	}
	for _, t := range themes {
		draft.Themes = append(draft.Themes, asText(t))
	}
	return draft, true
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
