package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, nil, nil).RegisterRoutes(r)
	return r
}

func postGeorgia(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/georgia", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandleGeorgiaReturnsMessage(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithProcessor(&fakeProcessor{reply: "What did the rain sound like?"}, time.Second, nil, nil)
	rec := postGeorgia(t, newTestRouter(svc), `{"messages":[{"role":"georgia","content":"Hi"},{"role":"user","content":"I walked"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "What did the rain sound like?" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["story"]; ok {
		t.Fatal("did not expect a story key")
	}
}

func TestHandleGeorgiaReturnsStory(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithProcessor(&fakeProcessor{reply: storyJSON}, time.Second, nil, nil)
	rec := postGeorgia(t, newTestRouter(svc), `{"messages":[{"role":"user","content":"I walked"}],"wrapUp":true}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	storyObj, ok := body["story"].(map[string]any)
	if !ok {
		t.Fatalf("expected story object, got %v", body)
	}
	if storyObj["title"] != "The Long Walk" {
		t.Fatalf("unexpected story: %v", storyObj)
	}
}

func TestHandleGeorgiaValidation(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithProcessor(&fakeProcessor{reply: "ok"}, time.Second, nil, nil)
	h := newTestRouter(svc)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{`, "invalid request body"},
		{"missing messages", `{}`, "messages array required"},
		{"bad role", `{"messages":[{"role":"system","content":"x"}]}`, "invalid message role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postGeorgia(t, h, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != tt.want {
				t.Fatalf("expected error %q, got %v", tt.want, got)
			}
		})
	}
}

func TestHandleGeorgiaEmptyHistoryIsAccepted(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithProcessor(&fakeProcessor{reply: "Tell me about today."}, time.Second, nil, nil)
	rec := postGeorgia(t, newTestRouter(svc), `{"messages":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleGeorgiaNotConfigured(t *testing.T) {
	t.Parallel()

	rec := postGeorgia(t, newTestRouter(NewServiceWithProcessor(nil, 0, nil, nil)), `{"messages":[]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleGeorgiaUpstreamFailure(t *testing.T) {
	t.Parallel()

	svc := NewServiceWithProcessor(&fakeProcessor{err: errors.New("boom")}, time.Second, nil, nil)
	rec := postGeorgia(t, newTestRouter(svc), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != unavailableMessage {
		t.Fatalf("unexpected error message: %v", got)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatal("upstream error details must not leak to the client")
	}
}
