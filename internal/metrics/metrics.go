// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records session, conversation, speech and reminder metrics.
// It satisfies the recorder interfaces of the session, agent, speech and
// reminder packages.
type Collector struct {
	transitions     *prometheus.CounterVec
	storiesSaved    prometheus.Counter
	speechFailures  prometheus.Counter
	speechFallbacks *prometheus.CounterVec
	converseTotal   *prometheus.CounterVec
	converseLatency *prometheus.HistogramVec
	remindersSent   prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftr_session_transitions_total",
			Help: "Session state transitions by source and target state.",
		}, []string{"from", "to"}),
		storiesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftr_stories_saved_total",
			Help: "Stories saved from completed sessions.",
		}),
		speechFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftr_speech_failures_total",
			Help: "Utterances where every playback backend failed.",
		}),
		speechFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftr_speech_fallbacks_total",
			Help: "Playback backends that failed and handed over to the next one.",
		}, []string{"backend"}),
		converseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftr_converse_total",
			Help: "Conversational calls by mode and outcome.",
		}, []string{"mode", "outcome"}),
		converseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ftr_converse_latency_seconds",
			Help:    "Conversational call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"mode"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftr_reminders_sent_total",
			Help: "Daily reminders delivered.",
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.storiesSaved,
		c.speechFailures,
		c.speechFallbacks,
		c.converseTotal,
		c.converseLatency,
		c.remindersSent,
	)
	return c
}

// RecordTransition counts a session state change.
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordStorySaved counts a persisted story.
func (c *Collector) RecordStorySaved() {
	c.storiesSaved.Inc()
}

// RecordSpeechFailure counts an utterance no backend could play.
func (c *Collector) RecordSpeechFailure() {
	c.speechFailures.Inc()
}

// RecordSpeechFallback counts a backend failure that fell through to the next backend.
func (c *Collector) RecordSpeechFallback(backend string) {
	c.speechFallbacks.WithLabelValues(backend).Inc()
}

// RecordConverse records one conversational call.
func (c *Collector) RecordConverse(mode, outcome string, d time.Duration) {
	c.converseTotal.WithLabelValues(mode, outcome).Inc()
	c.converseLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordReminderSent counts a delivered reminder.
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// RegisterLiveSessions exposes count as the ftr_live_sessions gauge.
func RegisterLiveSessions(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ftr_live_sessions",
		Help: "Open live session connections.",
	}, func() float64 { return float64(count()) }))
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
