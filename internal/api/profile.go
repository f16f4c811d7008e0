package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/for-the-record/internal/domain"
)

// ProfileHandler serves reminder preferences.
type ProfileHandler struct {
	*Handler
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(base *Handler) *ProfileHandler {
	return &ProfileHandler{Handler: base}
}

// RegisterRoutes registers the profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/profile", h.Get)
	r.Put("/api/profile", h.Put)
}

// Get returns the caller's profile, or the defaults when none was saved.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	JSON(w, http.StatusOK, domain.ProfileUpdate{}.Merge(userID, p))
}

// Put merges the supplied fields into the caller's profile.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var update domain.ProfileUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	if err := update.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.repo.UpsertProfile(r.Context(), userID, update)
	if err != nil {
		h.logger.Error("failed to save profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	JSON(w, http.StatusOK, p)
}
