package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/for-the-record/internal/domain"
	"github.com/ashureev/for-the-record/internal/store"
	"github.com/ashureev/for-the-record/internal/story"
)

// StoriesHandler serves the story archive.
type StoriesHandler struct {
	*Handler
}

// NewStoriesHandler creates a stories handler.
func NewStoriesHandler(base *Handler) *StoriesHandler {
	return &StoriesHandler{Handler: base}
}

// RegisterRoutes registers the archive routes.
func (h *StoriesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/stories", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/facets", h.Facets)
		r.Get("/feed.atom", h.Feed)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type storiesResponse struct {
	Stories []*domain.Story `json:"stories"`
}

type facetsResponse struct {
	Moods  []string `json:"moods"`
	Themes []string `json:"themes"`
}

func queryFromRequest(r *http.Request) story.Query {
	q := r.URL.Query()
	return story.Query{
		Text:  strings.TrimSpace(q.Get("q")),
		Mood:  strings.TrimSpace(q.Get("mood")),
		Theme: strings.TrimSpace(q.Get("theme")),
	}
}

// List returns the caller's stories, newest first, narrowed by q, mood and theme.
func (h *StoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	stories, err := h.repo.ListStories(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list stories", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stories")
		return
	}
	JSON(w, http.StatusOK, storiesResponse{Stories: story.Filter(stories, queryFromRequest(r))})
}

// Facets returns the distinct moods and themes across the caller's archive.
func (h *StoriesHandler) Facets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	stories, err := h.repo.ListStories(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list stories", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stories")
		return
	}
	JSON(w, http.StatusOK, facetsResponse{Moods: story.Moods(stories), Themes: story.Themes(stories)})
}

// Get returns one story.
func (h *StoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	s, err := h.repo.GetStory(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("failed to get story", "user_id", userID, "story_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load story")
		return
	}
	if s == nil {
		Error(w, http.StatusNotFound, "story not found")
		return
	}
	JSON(w, http.StatusOK, s)
}

// Update edits the title, body or tags of a story. Input is stripped of markup.
func (h *StoriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var update domain.StoryUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	if update.IsEmpty() {
		Error(w, http.StatusBadRequest, "no fields to update")
		return
	}
	update = h.sanitizer.Update(update)
	if update.Title != nil && *update.Title == "" {
		Error(w, http.StatusBadRequest, "title cannot be empty")
		return
	}
	if update.Body != nil && *update.Body == "" {
		Error(w, http.StatusBadRequest, "body cannot be empty")
		return
	}

	s, err := h.repo.UpdateStory(r.Context(), userID, id, update)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "story not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update story", "user_id", userID, "story_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update story")
		return
	}
	JSON(w, http.StatusOK, s)
}

// Delete removes a story.
func (h *StoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	err := h.repo.DeleteStory(r.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "story not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete story", "user_id", userID, "story_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete story")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
