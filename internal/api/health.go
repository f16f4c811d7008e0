package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/for-the-record/internal/identity"
	"github.com/ashureev/for-the-record/internal/store"
)

// Features reports which optional integrations have credentials configured.
type Features struct {
	Georgia   bool `json:"anthropic"`
	TTS       bool `json:"googleTts"`
	Firestore bool `json:"firebase"`
}

// HealthHandler handles health check and diagnostics endpoints.
type HealthHandler struct {
	repo     store.Repository
	features Features
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHealthHandler creates a new health handler. timeout bounds the database ping.
func NewHealthHandler(repo store.Repository, features Features, timeout time.Duration, logger *slog.Logger) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{repo: repo, features: features, timeout: timeout, logger: logger}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status := map[string]any{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}

// ConfigCheck reports credential presence as booleans. It never echoes values.
func (h *HealthHandler) ConfigCheck(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.features)
}

// Me returns the caller's anonymous identity.
func (h *HealthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"user_id":    userID,
		"username":   identity.UsernameFromContext(r.Context()),
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

// RegisterHealth registers the health and diagnostics routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/config-check", h.ConfigCheck)
}

// RegisterRoutes registers identity-scoped routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.Me)
}
