package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the enrichment flow.
type Metrics struct {
	enrichRequests  *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerRetries prometheus.Counter
	providerLatency prometheus.Observer
	breakerState    prometheus.Gauge
	pendingBacklog  prometheus.Gauge
	stalePending    prometheus.Gauge
}

// New registers the enrichment instruments on the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	enrichRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_requests_total",
		Help: "Enrichment requests by terminal status.",
	}, []string{"status"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_merchant_cache_lookups_total",
		Help: "Merchant cache lookups by result.",
	}, []string{"result"})

	providerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_provider_calls_total",
		Help: "Upstream provider call outcomes.",
	}, []string{"outcome"})

	providerRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrich_provider_retries_total",
		Help: "Retry attempts issued against the provider.",
	})

	providerLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrich_provider_call_duration_seconds",
		Help:    "Latency of provider calls including retries.",
		Buckets: prometheus.DefBuckets,
	})

	breakerState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrich_provider_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
	})

	pendingBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrich_pending_requests",
		Help: "Enrichment requests currently in PENDING status.",
	})

	stalePending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrich_stale_pending_requests",
		Help: "PENDING requests older than the staleness threshold.",
	})

	for _, collector := range []prometheus.Collector{
		enrichRequests, cacheLookups, providerCalls, providerRetries, providerLatency, breakerState,
		pendingBacklog, stalePending,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return &Metrics{
		enrichRequests:  enrichRequests,
		cacheLookups:    cacheLookups,
		providerCalls:   providerCalls,
		providerRetries: providerRetries,
		providerLatency: providerLatency,
		breakerState:    breakerState,
		pendingBacklog:  pendingBacklog,
		stalePending:    stalePending,
	}, nil
}

func (m *Metrics) RecordEnrichRequest(status string) {
	if m == nil {
		return
	}
	m.enrichRequests.WithLabelValues(strings.ToLower(strings.TrimSpace(status))).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordProviderCall(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(strings.TrimSpace(outcome)).Inc()
	m.providerLatency.Observe(seconds)
}

func (m *Metrics) RecordProviderRetry() {
	if m == nil {
		return
	}
	m.providerRetries.Inc()
}

func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(state)
}

func (m *Metrics) SetPendingBacklog(total, stale float64) {
	if m == nil {
		return
	}
	m.pendingBacklog.Set(total)
	m.stalePending.Set(stale)
}
