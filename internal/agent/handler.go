package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/for-the-record/internal/domain"
	"github.com/ashureev/for-the-record/internal/identity"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

const unavailableMessage = "Georgia is unavailable right now. Please try again."

// GeorgiaRequest is the body of POST /api/georgia.
type GeorgiaRequest struct {
	Messages   []domain.Turn `json:"messages"`
	WrapUp     bool          `json:"wrapUp,omitempty"`
	ForceStory bool          `json:"forceStory,omitempty"`
}

// Handler serves the stateless conversational endpoint.
type Handler struct {
	service *Service
	log     ConversationLogger
	logger  *slog.Logger
}

// NewHandler creates a Handler. convLog may be nil.
func NewHandler(service *Service, convLog ConversationLogger, logger *slog.Logger) *Handler {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, log: convLog, logger: logger}
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/georgia", h.HandleGeorgia)
}

// HandleGeorgia handles POST /api/georgia.
func (h *Handler) HandleGeorgia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	var req GeorgiaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Messages == nil {
		writeError(w, http.StatusBadRequest, "messages array required")
		return
	}
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid message role")
			return
		}
	}

	if !h.service.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Georgia is not configured")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	reqID := chiMiddleware.GetReqID(r.Context())

	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == domain.SpeakerUser {
		h.log.Log(ConversationLogEvent{
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
			UserID:     userID,
			SessionID:  sessionID,
			Channel:    "georgia_http",
			Direction:  "inbound",
			EventType:  "user_turn",
			ContentRaw: req.Messages[n-1].Content,
			Meta:       map[string]any{"request_id": reqID},
		})
	}

	reply, err := h.service.Converse(r.Context(), Request{
		Turns:      req.Messages,
		WrapUp:     req.WrapUp,
		ForceStory: req.ForceStory,
	})
	if err != nil {
		h.logger.Error("Georgia request failed",
			"user_id", userID,
			"session_id", sessionID,
			"request_id", reqID,
			"error", err)
		if errors.Is(err, ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "Georgia is not configured")
			return
		}
		writeError(w, http.StatusBadGateway, unavailableMessage)
		return
	}

	event := ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "georgia_http",
		Direction: "outbound",
		EventType: "georgia_turn",
		Meta:      map[string]any{"request_id": reqID, "mode": Request{WrapUp: req.WrapUp, ForceStory: req.ForceStory}.Mode()},
	}
	if reply.Story != nil {
		event.EventType = "story"
		event.ContentRaw = reply.Story.Title + "\n\n" + reply.Story.Body
	} else {
		event.ContentRaw = reply.Message
	}
	h.log.Log(event)

	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
