package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomePersistFailed = "persist_failed"
	OutcomeSkipped       = "skipped"
)

// Recorder tracks collector activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	rowsInserted  prometheus.Counter
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
	lastHeight    prometheus.Gauge
	lastPrice     prometheus.Gauge

	mu                  sync.RWMutex
	startedAt           time.Time
	lastSuccessAt       time.Time
	lastErrorAt         time.Time
	lastError           string
	consecutiveFailures int
	totalCycles         uint64
}

// NewRecorder registers the collector metrics on a private registry.
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry:  prometheus.NewRegistry(),
		startedAt: time.Now(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome.",
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed fetches by source and error kind.",
		}, []string{"source", "kind"}),
		rowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Observations written to the database.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one fetch-compose-persist cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that wrote a row.",
		}),
		lastHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_height",
			Help:      "Chain height of the last written observation.",
		}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Price of the last written observation.",
		}),
	}

	r.registry.MustRegister(
		r.cycles,
		r.fetchErrors,
		r.rowsInserted,
		r.cycleDuration,
		r.lastSuccess,
		r.lastHeight,
		r.lastPrice,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveCycle records the end of a cycle.
func (r *Recorder) ObserveCycle(outcome string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(elapsed.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCycles++
	switch {
	case outcome == OutcomeSuccess:
		r.consecutiveFailures = 0
	case err != nil:
		r.consecutiveFailures++
		r.lastError = err.Error()
		r.lastErrorAt = time.Now()
	}
}

// FetchFailed counts a failed fetch.
func (r *Recorder) FetchFailed(source, kind string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(source, kind).Inc()
}

// RowInserted records a successful write.
func (r *Recorder) RowInserted(height int64, price float64) {
	if r == nil {
		return
	}
	now := time.Now()
	r.rowsInserted.Inc()
	r.lastSuccess.Set(float64(now.Unix()))
	r.lastHeight.Set(float64(height))
	r.lastPrice.Set(price)

	r.mu.Lock()
	r.lastSuccessAt = now
	r.mu.Unlock()
}

// HealthResponse is the JSON body of /health.
type HealthResponse struct {
	Status              string `json:"status"`
	Uptime              string `json:"uptime"`
	Cycles              uint64 `json:"cycles"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastSuccess         string `json:"last_success,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorTime       string `json:"last_error_time,omitempty"`
}

// Health summarises recent activity. Status is "starting" before the first cycle,
// "healthy" after a successful cycle and "degraded" while cycles keep failing.
func (r *Recorder) Health() HealthResponse {
	if r == nil {
		return HealthResponse{Status: "unknown"}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := HealthResponse{
		Status:              "healthy",
		Uptime:              time.Since(r.startedAt).Round(time.Second).String(),
		Cycles:              r.totalCycles,
		ConsecutiveFailures: r.consecutiveFailures,
	}
	switch {
	case r.totalCycles == 0:
		resp.Status = "starting"
	case r.consecutiveFailures > 0:
		resp.Status = "degraded"
	}
	if !r.lastSuccessAt.IsZero() {
		resp.LastSuccess = r.lastSuccessAt.UTC().Format(time.RFC3339)
	}
	if r.lastError != "" {
		resp.LastError = r.lastError
		resp.LastErrorTime = r.lastErrorAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Handler serves /metrics and /health.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Health())
	})
	return mux
}
