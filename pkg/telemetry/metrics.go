package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for the panel system.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	opsSubmitted *prometheus.CounterVec
	opsCompleted *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	queueDepth   prometheus.Gauge

	// Panel metrics
	livePanels     prometheus.Gauge
	resolverPasses prometheus.Counter
	maskActive     prometheus.Gauge
	mainSwitches   prometheus.Counter

	// Error metrics
	callbackErrors *prometheus.CounterVec
	errorsByClass  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		opsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_submitted_total",
				Help:      "Total number of operations submitted to the scheduler",
			},
			[]string{"type"},
		),
		opsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of operations resolved, by final state",
			},
			[]string{"type", "state"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time from dequeue to resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Operations waiting in the scheduler queue",
			},
		),

		livePanels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_panels",
				Help:      "Current number of live panel instances",
			},
		),
		resolverPasses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_passes_total",
				Help:      "Total number of layout resolver passes",
			},
		),
		maskActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mask_active",
				Help:      "Whether the shared mask is active (1) or not (0)",
			},
		),
		mainSwitches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "main_switches_total",
				Help:      "Total number of committed main-screen switches",
			},
		),

		callbackErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_errors_total",
				Help:      "Total number of failed hooks and collaborator calls",
			},
			[]string{"hook"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.opsSubmitted,
		m.opsCompleted,
		m.opDuration,
		m.queueDepth,
		m.livePanels,
		m.resolverPasses,
		m.maskActive,
		m.mainSwitches,
		m.callbackErrors,
		m.errorsByClass,
	)

	return m, nil
}

// RecordSubmitted records an operation entering the queue.
func (m *Metrics) RecordSubmitted(opType string, depth int) {
	if m.opsSubmitted == nil {
		return
	}
	m.opsSubmitted.WithLabelValues(opType).Inc()
	m.queueDepth.Set(float64(depth))
}

// RecordCompleted records an operation's resolution.
func (m *Metrics) RecordCompleted(opType, state string, duration time.Duration) {
	if m.opsCompleted == nil {
		return
	}
	m.opsCompleted.WithLabelValues(opType, state).Inc()
	m.opDuration.WithLabelValues(opType).Observe(duration.Seconds())
}

// SetQueueDepth sets the current queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// PanelCreated increments the live panel gauge.
func (m *Metrics) PanelCreated() {
	if m.livePanels == nil {
		return
	}
	m.livePanels.Inc()
}

// PanelDestroyed decrements the live panel gauge.
func (m *Metrics) PanelDestroyed() {
	if m.livePanels == nil {
		return
	}
	m.livePanels.Dec()
}

// RecordResolverPass records a resolver pass and the resulting mask state.
func (m *Metrics) RecordResolverPass(maskActive bool) {
	if m.resolverPasses == nil {
		return
	}
	m.resolverPasses.Inc()
	if maskActive {
		m.maskActive.Set(1)
	} else {
		m.maskActive.Set(0)
	}
}

// RecordMainSwitch records a committed main-screen switch.
func (m *Metrics) RecordMainSwitch() {
	if m.mainSwitches == nil {
		return
	}
	m.mainSwitches.Inc()
}

// RecordCallbackError records a failed hook.
func (m *Metrics) RecordCallbackError(hook string) {
	if m.callbackErrors == nil {
		return
	}
	m.callbackErrors.WithLabelValues(hook).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on addr until ctx is canceled.
// It returns immediately; serve errors are logged.
func (m *Metrics) StartMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) {
	if m.registry == nil || addr == "" {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("path", path).Msg("Metrics server started")
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
