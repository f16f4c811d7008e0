package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleTestServer(t *testing.T, status int, audio []byte, got *synthesizeRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"quota"}}`, status)
			return
		}
		_ = json.NewEncoder(w).Encode(synthesizeResponse{AudioContent: base64.StdEncoding.EncodeToString(audio)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleClientSynthesize(t *testing.T) {
	t.Parallel()

	var got synthesizeRequest
	srv := newGoogleTestServer(t, http.StatusOK, []byte("ID3-mp3"), &got)
	c := NewGoogleClient(srv.Client(), GoogleConfig{APIKey: "test-key", Endpoint: srv.URL}, nil)

	audio, err := c.Synthesize(context.Background(), "  Hello there  ")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-mp3"), audio)

	assert.Equal(t, "Hello there", got.Input.Text)
	assert.Equal(t, "en-US-Neural2-F", got.Voice.Name)
	assert.Equal(t, "en-US", got.Voice.LanguageCode)
	assert.Equal(t, "MP3", got.AudioConfig.AudioEncoding)
	assert.InDelta(t, 0.92, got.AudioConfig.SpeakingRate, 1e-9)
	assert.InDelta(t, -1.0, got.AudioConfig.Pitch, 1e-9)
	assert.Equal(t, []string{"headphone-class-device"}, got.AudioConfig.EffectsProfileID)
}

func TestGoogleClientTruncatesLongText(t *testing.T) {
	t.Parallel()

	var got synthesizeRequest
	srv := newGoogleTestServer(t, http.StatusOK, []byte("x"), &got)
	c := NewGoogleClient(srv.Client(), GoogleConfig{APIKey: "test-key", Endpoint: srv.URL}, nil)

	_, err := c.Synthesize(context.Background(), strings.Repeat("é", MaxTextLength+100))
	require.NoError(t, err)
	assert.Equal(t, MaxTextLength, len([]rune(got.Input.Text)))
}

func TestGoogleClientErrorStatus(t *testing.T) {
	t.Parallel()

	srv := newGoogleTestServer(t, http.StatusForbidden, nil, nil)
	c := NewGoogleClient(srv.Client(), GoogleConfig{APIKey: "test-key", Endpoint: srv.URL}, nil)

	_, err := c.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestGoogleClientNotConfigured(t *testing.T) {
	t.Parallel()

	c := NewGoogleClient(nil, GoogleConfig{}, nil)
	assert.False(t, c.Enabled())
	_, err := c.Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *GoogleClient
	assert.False(t, nilClient.Enabled())
}

func TestGoogleClientEmptyText(t *testing.T) {
	t.Parallel()

	c := NewGoogleClient(nil, GoogleConfig{APIKey: "k"}, nil)
	_, err := c.Synthesize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short"))
	long := strings.Repeat("a", MaxTextLength+1)
	assert.Len(t, Truncate(long), MaxTextLength)
}
