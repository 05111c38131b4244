// Package telemetry records request and import metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "nest"

// Import outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Config configures the OTLP exporter. An empty Endpoint disables export.
type Config struct {
	Endpoint       string
	Insecure       bool
	ServiceVersion string
}

// Metrics holds the instruments used across the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	requests metric.Int64Counter
	duration metric.Float64Histogram
	imports  metric.Int64Counter
}

// New creates the instruments. With an endpoint configured, metrics are pushed
// to an OTLP collector over gRPC; otherwise the global provider is used.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	if cfg.Endpoint == "" {
		return NewWithProvider(otel.GetMeterProvider())
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	m, err := NewWithProvider(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	m.provider = provider
	return m, nil
}

// NewWithProvider creates the instruments on an existing provider.
func NewWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(serviceName)

	requests, err := meter.Int64Counter(
		"nest_http_requests_total",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"nest_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	imports, err := meter.Int64Counter(
		"nest_project_imports_total",
		metric.WithDescription("Project metadata imports by outcome"),
		metric.WithUnit("{import}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating imports counter: %w", err)
	}

	return &Metrics{requests: requests, duration: duration, imports: imports}, nil
}

// RecordRequest counts one served HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, elapsed.Seconds(), opt)
}

// RecordImport counts one project import with its outcome.
func (m *Metrics) RecordImport(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Shutdown flushes pending metrics when this package owns the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
