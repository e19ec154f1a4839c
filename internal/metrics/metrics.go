// Package metrics holds the private Prometheus registry served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	AttemptLatency      *prometheus.HistogramVec
	FallbacksTotal      *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec
	CandidateSkipsTotal *prometheus.CounterVec
	CursorCommitsTotal  prometheus.Counter
	RateLimitedTotal    prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_requests_total",
			Help: "Total requests routed",
		}, []string{"source_format", "provider", "model", "status"}),
		AttemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrouter_attempt_latency_ms",
			Help:    "Upstream attempt latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"provider", "model", "format"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_fallbacks_total",
			Help: "Requests that fell back past the selected candidate",
		}, []string{"route_type"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_retries_total",
			Help: "Same-candidate retries after retryable failures",
		}, []string{"provider"}),
		CandidateSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_candidate_skips_total",
			Help: "Candidates skipped during ranking",
		}, []string{"reason"}),
		CursorCommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llmrouter_cursor_commits_total",
			Help: "Route cursor advances",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llmrouter_inbound_rate_limited_total",
			Help: "Inbound requests rejected with 429",
		}),
	}
	reg.MustRegister(
		m.RequestsTotal, m.AttemptLatency, m.FallbacksTotal, m.RetriesTotal,
		m.CandidateSkipsTotal, m.CursorCommitsTotal, m.RateLimitedTotal,
	)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
