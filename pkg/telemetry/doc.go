// Package telemetry provides the observability stack for hydration runs.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and run timeline events into one
// bundle that the CLI builds at startup and hands to the engine.
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
//	ctx = tel.WithContext(ctx)
//
// After WithContext, zerolog.Ctx(ctx) returns the configured logger.
// StartCommand adds the command name and, when tracing is enabled, the
// trace id, so both reach every log line the engine writes for a run.
//
// # Tracing
//
// NewTracer installs the configured provider globally. The engine obtains
// its tracer from otel.Tracer, so enabling tracing here is all that is
// needed for run, function and step spans to be exported. Supported
// exporters are otlp (gRPC), stdout, and none.
//
// # Metrics
//
// Metrics implements engine.MetricsRecorder:
//
//	hydrate_runs_started_total
//	hydrate_runs_completed_total{status}
//	hydrate_run_duration_seconds{status}
//	hydrate_steps_total{step,status,runtime}
//	hydrate_step_duration_seconds{step,runtime}
//	hydrate_errors_by_class_total{class}
//	hydrate_errors_by_code_total{code}
//	hydrate_active_runs
//
// A disabled Metrics value is a no-op and its Handler serves 404.
//
// # Events
//
// EventPublisher implements engine.EventPublisher. Subscribers are invoked
// synchronously from the publishing goroutine, or from a single background
// goroutine when async delivery is enabled:
//
//	tel.Events.Subscribe(telemetry.JSONLinesSubscriber(os.Stderr),
//	    telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
