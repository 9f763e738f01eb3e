package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Telemetry bundles logging, tracing, metrics, and the event bus.
// It implements engine.Observer.
type Telemetry struct {
	engine.NopObserver

	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Bus     *Bus
	Config  *Config

	subscriptionID string
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return NewTelemetryWithLogger(cfg, logger)
}

// NewTelemetryWithLogger creates a telemetry instance around an existing logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Bus:     NewBus(cfg.Events, logger.Zerolog()),
		Config:  cfg,
	}

	id, err := t.Bus.Subscribe(context.Background(), engine.EventFilter{
		Types: []engine.EventType{engine.EventPanelCreated, engine.EventPanelDestroyed},
	}, t.trackPanels)
	if err != nil {
		return nil, err
	}
	t.subscriptionID = id

	return t, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains the bus and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Bus.Unsubscribe(ctx, t.subscriptionID); err != nil {
		t.Logger.WithError(err).Warn("Failed to remove panel tracking subscription")
	}
	if err := t.Bus.Shutdown(ctx); err != nil {
		return err
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return t.Logger.Close()
}

// StartMetricsServer serves metrics until ctx is canceled.
func (t *Telemetry) StartMetricsServer(ctx context.Context, addr string) {
	t.Metrics.StartMetricsServer(ctx, addr, t.Logger.Zerolog())
}

func (t *Telemetry) trackPanels(ctx context.Context, e *engine.Event) {
	switch e.Type {
	case engine.EventPanelCreated:
		t.Metrics.PanelCreated()
	case engine.EventPanelDestroyed:
		t.Metrics.PanelDestroyed()
	}
}

// OperationSubmitted records the operation and the queue depth.
func (t *Telemetry) OperationSubmitted(op *engine.OperationHandle, depth int) {
	t.Metrics.RecordSubmitted(string(op.Type()), depth)
}

// OperationStarted opens a span for the operation.
func (t *Telemetry) OperationStarted(ctx context.Context, op *engine.OperationHandle) context.Context {
	o := op.Operation()
	ctx, _ = t.Tracer.StartOperationSpan(ctx, op.ID(), string(o.Type), op.Path(), o.UseAnimation)
	return ctx
}

// OperationFinished closes the span and records the outcome.
func (t *Telemetry) OperationFinished(ctx context.Context, op *engine.OperationHandle, elapsed time.Duration) {
	state := op.State()
	t.Metrics.RecordCompleted(string(op.Type()), string(state), elapsed)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AttrOperationState.String(string(state)))
	if p, ok := op.TryGetResult(); ok && p != nil {
		span.SetAttributes(AttrPanelID.Int64(int64(p.ID())))
	}

	if err := op.Err(); err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			span.SetAttributes(AttrErrorClass.String(string(ee.Class)), AttrErrorCode.String(ee.Code))
			t.Metrics.RecordError(string(ee.Class))
		}
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()

	t.Logger.WithOperation(op.ID(), string(op.Type())).
		WithPath(op.Path()).
		WithField("state", string(state)).
		WithField("elapsed", elapsed.String()).
		Debug("Operation finished")
}

// ResolverPass records the pass and the mask state.
func (t *Telemetry) ResolverPass(result engine.ResolverResult) {
	t.Metrics.RecordResolverPass(result.MaskTarget != nil)
}

// CallbackFailed counts the failure.
func (t *Telemetry) CallbackFailed(path, hook string, err error) {
	t.Metrics.RecordCallbackError(hook)
	t.Metrics.RecordError(string(engine.ErrorClassCallbackException))
}

// MainChanged counts the switch.
func (t *Telemetry) MainChanged(previous, current string) {
	t.Metrics.RecordMainSwitch()
}
