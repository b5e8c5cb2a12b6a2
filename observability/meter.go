package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the global OpenTelemetry meter provider.
// The returned provider should be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments streamkit components report to. It
// implements transform.Observer.
type Metrics struct {
	streamErrors    metric.Int64Counter
	dropped         metric.Int64Counter
	mapInflight     metric.Int64UpDownCounter
	mapDuration     metric.Float64Histogram
	mapErrors       metric.Int64Counter
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestActive   metric.Int64UpDownCounter
	clients         metric.Int64UpDownCounter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.streamErrors, err = meter.Int64Counter("streamkit.stream.errors",
		metric.WithDescription("Failures contained at a stream boundary"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.stream.errors counter: %w", err)
	}
	if m.dropped, err = meter.Int64Counter("streamkit.buffer.dropped",
		metric.WithDescription("Values dropped by caches and queues, by reason"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.buffer.dropped counter: %w", err)
	}
	if m.mapInflight, err = meter.Int64UpDownCounter("streamkit.mapper.inflight",
		metric.WithDescription("Values currently being mapped"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.mapper.inflight gauge: %w", err)
	}
	if m.mapDuration, err = meter.Float64Histogram("streamkit.mapper.duration",
		metric.WithDescription("Duration of one mapping call in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.mapper.duration histogram: %w", err)
	}
	if m.mapErrors, err = meter.Int64Counter("streamkit.mapper.errors",
		metric.WithDescription("Mapping calls that returned an error"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.mapper.errors counter: %w", err)
	}
	if m.requestTotal, err = meter.Int64Counter("streamkit.expose.requests",
		metric.WithDescription("Requests handled by exposed routes"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.expose.requests counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("streamkit.expose.request.duration",
		metric.WithDescription("Time from request to reply in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.expose.request.duration histogram: %w", err)
	}
	if m.requestActive, err = meter.Int64UpDownCounter("streamkit.expose.request.active",
		metric.WithDescription("Requests waiting for a reply"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.expose.request.active gauge: %w", err)
	}
	if m.clients, err = meter.Int64UpDownCounter("streamkit.expose.clients",
		metric.WithDescription("Connected event subscribers"),
	); err != nil {
		return nil, fmt.Errorf("creating streamkit.expose.clients gauge: %w", err)
	}
	return &m, nil
}

// RecordStreamError counts a contained failure of a stream.
func (m *Metrics) RecordStreamError(ctx context.Context, stream string, code errors.ErrorCode) {
	m.streamErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStream, stream),
		attribute.String(AttrErrorCode, string(code)),
	))
}

// RecordDrop counts n values dropped from a named buffer.
func (m *Metrics) RecordDrop(ctx context.Context, name string, reason buffer.DropReason, n int) {
	m.dropped.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String(AttrStream, name),
		attribute.String("reason", string(reason)),
	))
}

// DropRecorder returns a buffer.Options.OnDrop hook reporting to m.
func (m *Metrics) DropRecorder(name string) func(buffer.DropReason, int) {
	return func(reason buffer.DropReason, n int) {
		m.RecordDrop(context.Background(), name, reason, n)
	}
}

// MapStarted records a mapping call starting.
func (m *Metrics) MapStarted(name string) {
	m.mapInflight.Add(context.Background(), 1, metric.WithAttributes(attribute.String(AttrStream, name)))
}

// MapFinished records a mapping call ending.
func (m *Metrics) MapFinished(name string, elapsed time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String(AttrStream, name))
	m.mapInflight.Add(ctx, -1, attrs)
	m.mapDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.mapErrors.Add(ctx, 1, attrs)
	}
}

// RecordRequestStart increments the active request count.
func (m *Metrics) RecordRequestStart(ctx context.Context, route string) {
	m.requestActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRoute, route)))
}

// RecordRequestEnd decrements active requests and records the completed request.
func (m *Metrics) RecordRequestEnd(ctx context.Context, route, status string, duration time.Duration) {
	routeAttr := attribute.String(AttrRoute, route)
	m.requestActive.Add(ctx, -1, metric.WithAttributes(routeAttr))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(routeAttr, attribute.String(AttrStatus, status)))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(routeAttr))
}

// ClientConnected records an event subscriber joining route.
func (m *Metrics) ClientConnected(ctx context.Context, route, transport string) {
	m.clients.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRoute, route),
		attribute.String(AttrTransport, transport),
	))
}

// ClientDisconnected records an event subscriber leaving route.
func (m *Metrics) ClientDisconnected(ctx context.Context, route, transport string) {
	m.clients.Add(ctx, -1, metric.WithAttributes(
		attribute.String(AttrRoute, route),
		attribute.String(AttrTransport, transport),
	))
}
