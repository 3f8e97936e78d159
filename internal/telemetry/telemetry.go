// Package telemetry exposes the service's operational counters over a
// Prometheus endpoint on a dedicated listener, separate from the data API.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shortradar/logger"
)

// Metrics bundles the registry and the instruments used across the
// collector and the exchange client. A nil *Metrics is valid and turns all
// recording into no-ops, so tests can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal        prometheus.Counter
	cycleDuration      prometheus.Histogram
	symbolErrors       *prometheus.CounterVec
	snapshotsPublished prometheus.Counter
	upstreamRequests   *prometheus.CounterVec
}

// New creates and registers the instrument set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortradar_cycles_total",
			Help: "Collection cycles started.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shortradar_cycle_duration_seconds",
			Help:    "Wall time of one collection cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		symbolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortradar_symbol_errors_total",
			Help: "Per-symbol cycle updates dropped due to an error.",
		}, []string{"symbol"}),
		snapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortradar_snapshots_published_total",
			Help: "Snapshots committed to the store.",
		}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortradar_upstream_requests_total",
			Help: "Upstream exchange requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cyclesTotal,
		m.cycleDuration,
		m.symbolErrors,
		m.snapshotsPublished,
		m.upstreamRequests,
	)
	return m
}

// CycleStarted increments the cycle counter.
func (m *Metrics) CycleStarted() {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
}

// CycleFinished records the duration of a completed cycle.
func (m *Metrics) CycleFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

// SymbolError counts a dropped per-symbol update.
func (m *Metrics) SymbolError(symbol string) {
	if m == nil {
		return
	}
	m.symbolErrors.WithLabelValues(symbol).Inc()
}

// SnapshotPublished counts a committed snapshot.
func (m *Metrics) SnapshotPublished() {
	if m == nil {
		return
	}
	m.snapshotsPublished.Inc()
}

// UpstreamRequest counts one upstream call. Outcome is "ok" or "error".
func (m *Metrics) UpstreamRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Log) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithComponent("telemetry").WithFields(logger.Fields{"address": addr}).Info("telemetry listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
