package speech

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 64 << 10

// Handler serves POST /api/tts.
type Handler struct {
	synth  *GoogleClient
	logger *slog.Logger
}

// NewHandler creates a Handler around the Google client.
func NewHandler(synth *GoogleClient, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{synth: synth, logger: logger}
}

// RegisterRoutes registers speech routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tts", h.HandleTTS)
}

// HandleTTS synthesizes the posted text and returns MP3 bytes.
func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !h.synth.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "TTS not configured")
		return
	}

	audio, err := h.synth.Synthesize(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("tts synthesis failed", "error", err)
		if errors.Is(err, ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "TTS not configured")
			return
		}
		writeError(w, http.StatusBadGateway, "TTS service unavailable")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.logger.Warn("failed to write tts audio", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
