package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// GoogleConfig configures the Google Cloud Text-to-Speech voice.
type GoogleConfig struct {
	APIKey       string
	Endpoint     string
	LanguageCode string
	Voice        string
	Gender       string
	SpeakingRate float64
	Pitch        float64
}

// DefaultGoogleConfig returns Georgia's voice: an unhurried, slightly lowered Neural2 female voice.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		Endpoint:     defaultGoogleEndpoint,
		LanguageCode: "en-US",
		Voice:        "en-US-Neural2-F",
		Gender:       "FEMALE",
		SpeakingRate: 0.92,
		Pitch:        -1.0,
	}
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type audioConfig struct {
	AudioEncoding    string   `json:"audioEncoding"`
	SpeakingRate     float64  `json:"speakingRate"`
	Pitch            float64  `json:"pitch"`
	VolumeGainDb     float64  `json:"volumeGainDb"`
	EffectsProfileID []string `json:"effectsProfileId"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// GoogleClient calls the Text-to-Speech REST API with an API key.
type GoogleClient struct {
	httpClient *http.Client
	cfg        GoogleConfig
	logger     *slog.Logger
}

var _ Synthesizer = (*GoogleClient)(nil)

// NewGoogleClient creates a client. Zero fields in cfg take their defaults.
func NewGoogleClient(httpClient *http.Client, cfg GoogleConfig, logger *slog.Logger) *GoogleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultGoogleConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = defaults.LanguageCode
	}
	if cfg.Voice == "" {
		cfg.Voice = defaults.Voice
		cfg.Gender = defaults.Gender
	}
	if cfg.SpeakingRate == 0 {
		cfg.SpeakingRate = defaults.SpeakingRate
	}
	if cfg.Pitch == 0 {
		cfg.Pitch = defaults.Pitch
	}
	return &GoogleClient{httpClient: httpClient, cfg: cfg, logger: logger}
}

// Enabled reports whether an API key is configured.
func (c *GoogleClient) Enabled() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Synthesize returns MP3 audio for text, truncated to MaxTextLength.
func (c *GoogleClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	payload, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: Truncate(text)},
		Voice: voiceSelection{
			LanguageCode: c.cfg.LanguageCode,
			Name:         c.cfg.Voice,
			SSMLGender:   c.cfg.Gender,
		},
		AudioConfig: audioConfig{
			AudioEncoding:    "MP3",
			SpeakingRate:     c.cfg.SpeakingRate,
			Pitch:            c.cfg.Pitch,
			EffectsProfileID: []string{"headphone-class-device"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	reqURL, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse tts endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("key", c.cfg.APIKey)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("tts request failed", "error", err)
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("tts service returned an error status",
			"http_status", resp.StatusCode,
			"body", strings.TrimSpace(string(detail)))
		return nil, fmt.Errorf("tts service returned status %d", resp.StatusCode)
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts service returned no audio")
	}

	c.logger.Debug("tts synthesized",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", time.Since(start).Milliseconds())
	return audio, nil
}
