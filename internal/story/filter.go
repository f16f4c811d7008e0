package story

import (
	"slices"
	"strings"

	"github.com/ashureev/for-the-record/internal/domain"
)

// Query narrows an archive listing. Zero fields match everything.
type Query struct {
	Text  string
	Mood  string
	Theme string
}

// IsZero reports whether q filters nothing.
func (q Query) IsZero() bool {
	return q.Text == "" && q.Mood == "" && q.Theme == ""
}

// Matches reports whether s satisfies every set field of q. Text matching is a
// case-insensitive substring search over title, body, tags, themes and keywords.
func (q Query) Matches(s *domain.Story) bool {
	if q.Mood != "" && s.Mood != q.Mood {
		return false
	}
	if q.Theme != "" && !slices.Contains(s.Themes, q.Theme) {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return true
	}

	fields := make([]string, 0, 2+len(s.Tags)+len(s.Themes)+len(s.ThreeWords))
	fields = append(fields, s.Title, s.Body)
	fields = append(fields, s.Tags...)
	fields = append(fields, s.Themes...)
	fields = append(fields, s.ThreeWords[:]...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Filter returns the stories matching q, preserving order.
func Filter(stories []*domain.Story, q Query) []*domain.Story {
	if q.IsZero() {
		return stories
	}
	out := make([]*domain.Story, 0, len(stories))
	for _, s := range stories {
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// Moods returns the sorted distinct non-empty moods across stories.
func Moods(stories []*domain.Story) []string {
	seen := make(map[string]struct{})
	for _, s := range stories {
		if s.Mood != "" {
			seen[s.Mood] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Themes returns the sorted distinct themes across stories.
func Themes(stories []*domain.Story) []string {
	seen := make(map[string]struct{})
	for _, s := range stories {
		for _, t := range s.Themes {
			if t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
