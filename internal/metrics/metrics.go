// Package metrics exposes cycle and region outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
)

const (
	namespace = "patchline"
	subsystem = "watcher"

	// shutdownTimeout bounds the graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second

	// readHeaderTimeout protects the endpoint from slow clients.
	readHeaderTimeout = 5 * time.Second
)

// retrievalBuckets cover quick failures up to the retrieval timeout.
//
//nolint:gochecknoglobals // Constant bucket layout.
var retrievalBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90}

// Metrics owns the collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	cycles      *prometheus.CounterVec
	regions     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// New registers the watcher collectors and the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Number of finished poll cycles by result",
		}, []string{"result"}),
		regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "region_results_total",
			Help:      "Number of processed regions by outcome",
		}, []string{"region", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "region_duration_seconds",
			Help:      "Time spent processing one region, retrieval included",
			Buckets:   retrievalBuckets,
		}, []string{"region"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "region_last_success_timestamp_seconds",
			Help:      "Unix time of the last snapshot written for a region",
		}, []string{"region"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.regions,
		m.duration,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// CycleCompleted counts a finished cycle.
func (m *Metrics) CycleCompleted(result domain.CycleResult) {
	m.cycles.WithLabelValues(string(result)).Inc()
}

// RegionProcessed records the outcome and duration of one region.
func (m *Metrics) RegionProcessed(region string, outcome domain.Outcome, elapsed time.Duration) {
	m.regions.WithLabelValues(region, string(outcome)).Inc()
	m.duration.WithLabelValues(region).Observe(elapsed.Seconds())

	if outcome.Succeeded() {
		m.lastSuccess.WithLabelValues(region).SetToCurrentTime()
	}
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ServeListener exposes /metrics on lis until ctx is canceled.
func (m *Metrics) ServeListener(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "address", lis.Addr().String())

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	<-done

	return nil
}
