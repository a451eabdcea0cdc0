package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Location outcomes used as the "outcome" label.
const (
	OutcomeDone      = "done"
	OutcomeAbandoned = "abandoned"
	OutcomeBlocked   = "blocked"
	OutcomeSkipped   = "skipped"
)

// Metrics tracks operational metrics for a run. Every method is safe to call
// on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	LocationsTotal     *prometheus.CounterVec
	RecordsExtracted   *prometheus.CounterVec
	RecordsPersisted   prometheus.Counter
	OpenContexts       prometheus.Gauge
	SessionTransitions *prometheus.CounterVec
	StrategyDuration   *prometheus.HistogramVec
	SinkErrors         *prometheus.CounterVec

	// Run totals mirrored for the end-of-run report.
	locationsDone      atomic.Int64
	locationsAbandoned atomic.Int64
	locationsBlocked   atomic.Int64
	recordsExtracted   atomic.Int64
	recordsPersisted   atomic.Int64
	openContexts       atomic.Int64
	peakContexts       atomic.Int64

	logger *slog.Logger
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	locations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickscout_locations_total",
			Help: "Locations finished by outcome.",
		},
		[]string{"outcome"},
	)
	extracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickscout_records_extracted_total",
			Help: "Records produced by the extraction chain, by winning strategy.",
		},
		[]string{"strategy"},
	)
	persisted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quickscout_records_persisted_total",
			Help: "Records written by the aggregator.",
		},
	)
	openContexts := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickscout_open_contexts",
			Help: "Isolated browsing contexts currently open.",
		},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickscout_session_transitions_total",
			Help: "Session phase transitions by target phase.",
		},
		[]string{"phase"},
	)
	strategyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickscout_strategy_duration_seconds",
			Help:    "Time spent in each extraction strategy.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	sinkErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickscout_sink_errors_total",
			Help: "Failed sink writes by backend.",
		},
		[]string{"backend"},
	)

	registry.MustRegister(locations, extracted, persisted, openContexts, transitions, strategyDuration, sinkErrors)

	return &Metrics{
		Registry:           registry,
		LocationsTotal:     locations,
		RecordsExtracted:   extracted,
		RecordsPersisted:   persisted,
		OpenContexts:       openContexts,
		SessionTransitions: transitions,
		StrategyDuration:   strategyDuration,
		SinkErrors:         sinkErrors,
		logger:             logger.With("component", "metrics"),
	}
}

// IncLocation records a finished location.
func (m *Metrics) IncLocation(outcome string) {
	if m == nil {
		return
	}
	m.LocationsTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeDone:
		m.locationsDone.Add(1)
	case OutcomeAbandoned:
		m.locationsAbandoned.Add(1)
	case OutcomeBlocked:
		m.locationsBlocked.Add(1)
	}
}

// AddExtracted counts records produced by a strategy.
func (m *Metrics) AddExtracted(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsExtracted.WithLabelValues(strategy).Add(float64(n))
	m.recordsExtracted.Add(int64(n))
}

// AddPersisted counts records written by the aggregator.
func (m *Metrics) AddPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsPersisted.Add(float64(n))
	m.recordsPersisted.Add(int64(n))
}

// ContextOpened tracks an isolated context being opened.
func (m *Metrics) ContextOpened() {
	if m == nil {
		return
	}
	m.OpenContexts.Inc()
	cur := m.openContexts.Add(1)
	for {
		peak := m.peakContexts.Load()
		if cur <= peak || m.peakContexts.CompareAndSwap(peak, cur) {
			return
		}
	}
}

// ContextClosed tracks an isolated context being closed.
func (m *Metrics) ContextClosed() {
	if m == nil {
		return
	}
	m.OpenContexts.Dec()
	m.openContexts.Add(-1)
}

// IncTransition counts a session transition into phase.
func (m *Metrics) IncTransition(phase string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(phase).Inc()
}

// ObserveStrategy records how long a strategy ran.
func (m *Metrics) ObserveStrategy(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// IncSinkError counts a failed write to backend.
func (m *Metrics) IncSinkError(backend string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(backend).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server. It shuts down when ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	if m == nil {
		return fmt.Errorf("metrics are disabled")
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns the run totals as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"locations_done":      m.locationsDone.Load(),
		"locations_abandoned": m.locationsAbandoned.Load(),
		"locations_blocked":   m.locationsBlocked.Load(),
		"records_extracted":   m.recordsExtracted.Load(),
		"records_persisted":   m.recordsPersisted.Load(),
		"open_contexts":       m.openContexts.Load(),
		"peak_contexts":       m.peakContexts.Load(),
	}
}
