package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestRecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition("idle", "agent_speaking")
	c.RecordTransition("idle", "agent_speaking")
	c.RecordTransition("agent_speaking", "listening")

	metrics := gather(t, reg, "ftr_session_transitions_total")
	if len(metrics) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(metrics))
	}
	for _, m := range metrics {
		l := labels(m)
		want := 1.0
		if l["from"] == "idle" {
			want = 2
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("%v = %v, want %v", l, got, want)
		}
	}
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStorySaved()
	c.RecordSpeechFailure()
	c.RecordSpeechFailure()
	c.RecordReminderSent()

	tests := map[string]float64{
		"ftr_stories_saved_total":   1,
		"ftr_speech_failures_total": 2,
		"ftr_reminders_sent_total":  1,
	}
	for name, want := range tests {
		if got := gather(t, reg, name)[0].GetCounter().GetValue(); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestRecordSpeechFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSpeechFallback("google_tts")

	m := gather(t, reg, "ftr_speech_fallbacks_total")[0]
	if labels(m)["backend"] != "google_tts" || m.GetCounter().GetValue() != 1 {
		t.Fatalf("unexpected fallback metric: %v", m)
	}
}

func TestRecordConverse(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordConverse("question", "message", 300*time.Millisecond)
	c.RecordConverse("story", "error", 2*time.Second)

	if n := len(gather(t, reg, "ftr_converse_total")); n != 2 {
		t.Fatalf("converse label sets = %d, want 2", n)
	}
	for _, m := range gather(t, reg, "ftr_converse_latency_seconds") {
		if m.GetHistogram().GetSampleCount() != 1 {
			t.Errorf("%v sample count = %d", labels(m), m.GetHistogram().GetSampleCount())
		}
	}
}

func TestRegisterLiveSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := 3
	RegisterLiveSessions(reg, func() int { return n })

	if got := gather(t, reg, "ftr_live_sessions")[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("ftr_live_sessions = %v, want 3", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordStorySaved()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ftr_stories_saved_total 1") {
		t.Errorf("response missing ftr_stories_saved_total:\n%s", body)
	}
}
