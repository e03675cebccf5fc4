package httpcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks outbound HTTP health. Prometheus collectors feed the
// /metrics endpoint; the atomic counters back the JSON snapshot on the
// admin stats route.
type Metrics struct {
	requests           *prometheus.CounterVec
	retries            *prometheus.CounterVec
	breakerRejects     *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	latency            *prometheus.HistogramVec

	totalRequests atomic.Int64
	totalFailures atomic.Int64

	mu      sync.Mutex
	perHost map[string]*hostCounters
}

type hostCounters struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// Snapshot is the JSON view of outbound request counters.
type Snapshot struct {
	TotalRequests int64                   `json:"total_requests"`
	TotalFailures int64                   `json:"total_failures"`
	PerHost       map[string]hostCounters `json:"per_host"`
}

// NewMetrics registers the outbound HTTP collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskradar_outbound_requests_total",
			Help: "Outbound HTTP attempts by host and status class.",
		}, []string{"host", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskradar_outbound_retries_total",
			Help: "Outbound retry attempts by host.",
		}, []string{"host"}),
		breakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskradar_breaker_rejections_total",
			Help: "Requests rejected by an open circuit, by host.",
		}, []string{"host"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskradar_breaker_transitions_total",
			Help: "Circuit breaker state transitions by host and new state.",
		}, []string{"host", "state"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskradar_outbound_duration_seconds",
			Help:    "Outbound HTTP attempt latency by host.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"host"}),
		perHost: make(map[string]*hostCounters),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.retries, m.breakerRejects, m.breakerTransitions, m.latency)
	}
	return m
}

func (m *Metrics) observe(host, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(host, status).Inc()
	m.latency.WithLabelValues(host).Observe(elapsed.Seconds())

	m.totalRequests.Add(1)
	failed := status != "2xx" && status != "3xx"
	if failed {
		m.totalFailures.Add(1)
	}

	m.mu.Lock()
	hc, ok := m.perHost[host]
	if !ok {
		hc = &hostCounters{}
		m.perHost[host] = hc
	}
	hc.Requests++
	if failed {
		hc.Failures++
	}
	m.mu.Unlock()
}

// Stats returns the JSON snapshot of outbound counters.
func (m *Metrics) Stats() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	per := make(map[string]hostCounters, len(m.perHost))
	for host, hc := range m.perHost {
		per[host] = *hc
	}
	return Snapshot{
		TotalRequests: m.totalRequests.Load(),
		TotalFailures: m.totalFailures.Load(),
		PerHost:       per,
	}
}
