// Package telemetry provides observability for the panel system.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus), and the event bus that carries panel notifications and
// request events.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	sys := engine.New(catalog,
//	    engine.WithLogger(tel.Logger.Zerolog()),
//	    engine.WithPublisher(tel.Bus),
//	    engine.WithObserver(tel),
//	)
//
// # Event Bus
//
// Bus implements engine.EventPublisher and engine.EventSubscriber. In async
// mode one worker goroutine delivers events in publish order, so handlers may
// safely submit operations or call System.Inspect. Flush waits until every
// event published before the call has reached its handlers.
//
// # Metrics
//
// Metrics are registered on a private registry and exposed with
// StartMetricsServer:
//
//   - operations_submitted_total{type}
//   - operations_completed_total{type,state}
//   - operation_duration_seconds{type}
//   - queue_depth, live_panels, mask_active
//   - resolver_passes_total, main_switches_total
//   - callback_errors_total{hook}, errors_by_class_total{class}
//
// # Tracing
//
// Every scheduler operation gets one span named "panel.<type>", opened when
// the operation is dequeued and ended when its handle resolves.
package telemetry
