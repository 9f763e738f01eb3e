package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/panelflow/panelflow/pkg/engine"
)

type mapLoader map[string]*engine.Template

func (m mapLoader) Load(path string) (*engine.Template, error) {
	if t, ok := m[path]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", path, engine.ErrTemplateNotFound)
}

type failingHooks struct {
	engine.BaseHooks
}

func (failingHooks) OnShown(*engine.Panel) { panic("render failed") }

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.InMemoryExporter, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	tel, err := NewTelemetryWithLogger(cfg, NewLoggerWithWriter(cfg.Logging, &logs))
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}

	exporter := tracetest.NewInMemoryExporter()
	tel.Tracer = NewTracerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), "test")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	})
	return tel, exporter, &logs
}

func TestTelemetryObservesPanelSystem(t *testing.T) {
	tel, exporter, logs := newTestTelemetry(t)

	loader := mapLoader{
		"hud":   {Path: "hud", Layer: 0},
		"menu":  {Path: "menu", Layer: 10, UseMask: true},
		"X":     {Path: "X", Roles: engine.RoleMainUI},
		"error": {Path: "error", Layer: 50, Behavior: "failing"},
	}
	sys := engine.New(loader,
		engine.WithLogger(tel.Logger.Zerolog()),
		engine.WithPublisher(tel.Bus),
		engine.WithObserver(tel),
		engine.WithBehavior("failing", func() engine.Hooks { return failingHooks{} }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sys.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	wait := func(h *engine.OperationHandle) {
		if _, err := h.Wait(ctx); err != nil {
			t.Fatalf("Operation %s failed: %v", h.Type(), err)
		}
	}
	wait(sys.Show("hud", false, nil))
	wait(sys.Show("menu", false, nil))
	wait(sys.ShowMainUI("X", false, nil))
	wait(sys.Show("missing", false, nil))
	wait(sys.Show("error", false, nil))

	if err := sys.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := tel.Bus.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	m := tel.Metrics
	if got := testutil.ToFloat64(m.opsCompleted.WithLabelValues("show", "completed")); got != 4 {
		t.Errorf("Expected 4 completed shows, got %f", got)
	}
	if got := testutil.ToFloat64(m.opsSubmitted.WithLabelValues("show_main")); got != 1 {
		t.Errorf("Expected 1 show_main submission, got %f", got)
	}
	if got := testutil.ToFloat64(m.mainSwitches); got != 1 {
		t.Errorf("Expected 1 main switch, got %f", got)
	}
	if got := testutil.ToFloat64(m.callbackErrors.WithLabelValues("OnShown")); got != 1 {
		t.Errorf("Expected 1 OnShown failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.resolverPasses); got == 0 {
		t.Error("Expected resolver passes to be counted")
	}
	// menu and hud close on the main switch; X and error remain.
	if got := testutil.ToFloat64(m.livePanels); got != 2 {
		t.Errorf("Expected 2 live panels, got %f", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 5 {
		t.Fatalf("Expected 5 operation spans, got %d", len(spans))
	}
	if spans[0].Name != "panel.show" || spans[2].Name != "panel.show_main" {
		t.Errorf("Unexpected span names: %s, %s", spans[0].Name, spans[2].Name)
	}

	if !bytes.Contains(logs.Bytes(), []byte(`"message":"Operation finished"`)) {
		t.Error("Expected operation debug logs")
	}
}

func TestTelemetryContext(t *testing.T) {
	tel, _, _ := newTestTelemetry(t)

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("Expected telemetry from context")
	}
	if FromContext(ctx) != tel.Logger {
		t.Error("Expected logger from context")
	}
	if FromTelemetryContext(context.Background()) != nil {
		t.Error("Expected nil telemetry from empty context")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, false},
		{"missing name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty async buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordSubmitted("show", 1)
	m.RecordCompleted("show", "completed", time.Millisecond)
	m.PanelCreated()
	m.RecordResolverPass(true)

	if m.Registry() != nil {
		t.Error("Expected no registry for disabled metrics")
	}
}
