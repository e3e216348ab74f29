// Package telemetry sets up OpenTelemetry tracing and metrics for resolvd.
//
// Telemetry exports over OTLP (grpc or http/protobuf) and degrades to no-op
// providers when disabled or when exporter construction fails; it never
// stops the daemon from starting.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
//	defer tel.Shutdown(ctx)
//
// Engine components obtain tracers and meters through otel.Tracer and
// otel.Meter, so the global providers installed here are picked up
// without passing Telemetry around. Tests use NewTestTelemetry for
// in-memory span and metric capture.
package telemetry
