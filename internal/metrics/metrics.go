// Package metrics exposes ingestion cycle metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"property_agent/internal/model"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Recorder receives the result of every ingestion cycle.
type Recorder interface {
	ObserveRun(outcome string, report model.RunReport)
}

// Nop discards all observations.
type Nop struct{}

// ObserveRun does nothing.
func (Nop) ObserveRun(string, model.RunReport) {}

// Collector records cycle metrics in a Prometheus registry.
type Collector struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	extracted     prometheus.Counter
	stored        prometheus.Counter
	sent          prometheus.Counter
	sendFailures  prometheus.Counter
	lastSuccessAt prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "property_agent_runs_total",
			Help: "Ingestion cycles by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "property_agent_run_duration_seconds",
			Help:    "Duration of completed ingestion cycles.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		extracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "property_agent_properties_extracted_total",
			Help: "Properties parsed from sale documents.",
		}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "property_agent_properties_stored_total",
			Help: "Properties newly written to the catalogue.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "property_agent_notifications_sent_total",
			Help: "Notifications dispatched to subscribers.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "property_agent_notifications_failed_total",
			Help: "Notifications that could not be dispatched.",
		}),
		lastSuccessAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "property_agent_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion cycle.",
		}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.extracted,
		c.stored,
		c.sent,
		c.sendFailures,
		c.lastSuccessAt,
	)

	return c
}

// ObserveRun records one cycle. Counters only move for cycles that ran.
func (c *Collector) ObserveRun(outcome string, report model.RunReport) {
	c.runs.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	c.runDuration.Observe(report.Duration.Seconds())
	c.extracted.Add(float64(report.Parsed))
	c.stored.Add(float64(report.Stored))
	c.sent.Add(float64(report.Sent))
	c.sendFailures.Add(float64(report.SendFailures))
	if outcome == OutcomeSuccess {
		c.lastSuccessAt.Set(float64(time.Now().Unix()))
	}
}

// Router serves /metrics from gatherer and a /healthz liveness probe.
func Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
