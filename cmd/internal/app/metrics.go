package app

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "interviewprep"

// Metrics is the private Prometheus registry. It observes quota submissions and
// registrations, scoring fallbacks and outbox replays.
type Metrics struct {
	reg *prometheus.Registry

	registrations *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	fallbacks     prometheus.Counter
	replays       *prometheus.CounterVec
	outboxDepth   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Accounts created, by experiment group and whether a referral was applied.",
		}, []string{"group", "referral"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Answer submissions by outcome.",
		}, []string{"status"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scoring_fallbacks_total",
			Help:      "Evaluations that used the fixed fallback instead of the scoring oracle.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_replays_total",
			Help:      "Deferred outcomes replayed from the outbox, by result.",
		}, []string{"result"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_depth",
			Help:      "Outcomes waiting in the outbox after the last replay tick.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrations,
		m.submissions,
		m.fallbacks,
		m.replays,
		m.outboxDepth,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registered implements quota.Observer.
func (m *Metrics) Registered(group string, referralApplied bool) {
	m.registrations.WithLabelValues(group, strconv.FormatBool(referralApplied)).Inc()
}

// Submitted implements quota.Observer.
func (m *Metrics) Submitted(status string) {
	m.submissions.WithLabelValues(status).Inc()
}

// ScoringFallback is the scoring.WithFallbackHook callback.
func (m *Metrics) ScoringFallback(error) {
	m.fallbacks.Inc()
}

// Replayed implements outbox.Observer.
func (m *Metrics) Replayed(result string) {
	m.replays.WithLabelValues(result).Inc()
}

// Depth implements outbox.Observer.
func (m *Metrics) Depth(n int) {
	m.outboxDepth.Set(float64(n))
}
