// Package observability wires streamkit into OpenTelemetry.
//
// Setup installs OTLP/HTTP trace and metric exporters from Config:
//
//	shutdown, err := observability.Setup(ctx, cfg.Observability, observability.Resource{ServiceName: "streamd"})
//	defer shutdown(ctx)
//
// Metrics carries the streamkit instruments. It implements transform.Observer,
// provides buffer OnDrop hooks through DropRecorder, and backs Sink, a
// stream.ErrorSink that logs and counts contained failures:
//
//	metrics, err := observability.NewMetrics(observability.Meter("streamkit"))
//	stream.SetDefaultErrorSink(observability.NewSink(metrics))
//	out, err := transform.Map(in, fn, transform.WithObserver(metrics))
//
// Operation tracks a request through a span and the request metrics.
// ServiceHealth aggregates component health for health endpoints.
package observability
