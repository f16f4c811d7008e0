package story

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ashureev/for-the-record/internal/domain"
)

// Sanitizer strips markup from user-edited story fields. Stories are plain text,
// so the strict policy removes every tag and the result is unescaped back to text.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a Sanitizer with bluemonday's strict policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text removes markup from s and trims surrounding whitespace.
func (z *Sanitizer) Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(z.policy.Sanitize(s)))
}

// Update returns a copy of u with every supplied field sanitized. Tags that are
// empty after sanitizing are dropped.
func (z *Sanitizer) Update(u domain.StoryUpdate) domain.StoryUpdate {
	var out domain.StoryUpdate
	if u.Title != nil {
		t := z.Text(*u.Title)
		out.Title = &t
	}
	if u.Body != nil {
		b := z.Text(*u.Body)
		out.Body = &b
	}
	if u.Tags != nil {
		tags := make([]string, 0, len(*u.Tags))
		for _, tag := range *u.Tags {
			if clean := z.Text(tag); clean != "" {
				tags = append(tags, clean)
			}
		}
		out.Tags = &tags
	}
	return out
}
