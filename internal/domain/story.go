package domain

import (
	"time"
)

// DateLayout is the calendar date format stored on a story.
const DateLayout = "2006-01-02"

// StoryDraft is the structured story produced by the conversational model at wrap-up.
type StoryDraft struct {
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ThreeWords [3]string `json:"threeWords"`
	Mood       string    `json:"mood"`
	Themes     []string  `json:"themes"`
}

// Story is the persisted artifact of a completed session.
type Story struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	ThreeWords        [3]string `json:"threeWords"`
	Tags              []string  `json:"tags"`
	Mood              string    `json:"mood"`
	Themes            []string  `json:"themes"`
	Date              string    `json:"date"`
	CreatedAt         time.Time `json:"createdAt"`
	SessionTranscript []Turn    `json:"sessionTranscript"`
}

// NewStoryFromDraft attaches the session date and transcript to a draft.
// Tags start out as a copy of the draft's themes.
func NewStoryFromDraft(draft StoryDraft, date time.Time, transcript []Turn) *Story {
	return &Story{
		Title:             draft.Title,
		Body:              draft.Body,
		ThreeWords:        draft.ThreeWords,
		Tags:              append([]string(nil), draft.Themes...),
		Mood:              draft.Mood,
		Themes:            append([]string(nil), draft.Themes...),
		Date:              date.Format(DateLayout),
		SessionTranscript: CloneTurns(transcript),
	}
}

// StoryUpdate carries the user-editable fields of a story. Nil fields are left unchanged.
type StoryUpdate struct {
	Title *string   `json:"title,omitempty"`
	Body  *string   `json:"body,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u StoryUpdate) IsEmpty() bool {
	return u.Title == nil && u.Body == nil && u.Tags == nil
}

// Apply overwrites the edited fields of s in place.
func (u StoryUpdate) Apply(s *Story) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Body != nil {
		s.Body = *u.Body
	}
	if u.Tags != nil {
		s.Tags = append([]string(nil), (*u.Tags)...)
	}
}
