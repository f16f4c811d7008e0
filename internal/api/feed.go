package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/ashureev/for-the-record/internal/domain"
)

const feedLimit = 50

// buildFeed renders stories as an Atom feed. baseURL is the scheme and host links point at.
func buildFeed(stories []*domain.Story, baseURL string, now time.Time) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       "For the Record",
		Link:        &feeds.Link{Href: baseURL + "/"},
		Description: "Stories from the journal.",
		Id:          baseURL + "/api/stories/feed.atom",
		Updated:     now,
	}
	if len(stories) > 0 {
		feed.Updated = stories[0].CreatedAt
	}

	for i, s := range stories {
		if i == feedLimit {
			break
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          "urn:uuid:" + s.ID,
			Title:       s.Title,
			Link:        &feeds.Link{Href: baseURL + "/stories/" + s.ID},
			Description: strings.Join(nonEmpty(s.ThreeWords[:]), " · "),
			Content:     s.Body,
			Created:     s.CreatedAt,
			Updated:     s.CreatedAt,
		})
	}
	return feed
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// Feed serves the caller's most recent stories as Atom.
func (h *StoriesHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	stories, err := h.repo.ListStories(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list stories for feed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stories")
		return
	}

	atom, err := buildFeed(stories, requestBaseURL(r), time.Now()).ToAtom()
	if err != nil {
		h.logger.Error("failed to render feed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to render feed")
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(atom))
}
