// Package otel exports engine counters to an OTEL Collector.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

const (
	serviceName    = "migration-engine"
	serviceVersion = "1.0.0"
)

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint string
	Enabled  bool
	Insecure bool
}

// Exporter implements ports.EngineMetrics over an OTLP gRPC exporter.
// Counter Add calls are non-blocking; exports happen on the periodic
// reader's schedule.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	meter            metric.Meter
	assignmentsTotal metric.Int64Counter
	logDropsTotal    metric.Int64Counter
	pausesTotal      metric.Int64Counter
	reportsTotal     metric.Int64Counter
}

// NewExporter creates an OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
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
			semconv.ServiceVersion(serviceVersion),
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

	meter := provider.Meter(serviceName)

	assignmentsTotal, err := meter.Int64Counter(
		"migration_assignments_total",
		metric.WithDescription("Assignments served, by arm"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	logDropsTotal, err := meter.Int64Counter(
		"migration_assignment_log_drops_total",
		metric.WithDescription("Assignment log writes dropped"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating log drops counter: %w", err)
	}

	pausesTotal, err := meter.Int64Counter(
		"migration_guardrail_pauses_total",
		metric.WithDescription("Automatic pauses, by breached metric"),
		metric.WithUnit("{pause}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pauses counter: %w", err)
	}

	reportsTotal, err := meter.Int64Counter(
		"migration_reports_signed_total",
		metric.WithDescription("Comparison reports signed"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reports counter: %w", err)
	}

	return &Exporter{
		provider:         provider,
		meter:            meter,
		assignmentsTotal: assignmentsTotal,
		logDropsTotal:    logDropsTotal,
		pausesTotal:      pausesTotal,
		reportsTotal:     reportsTotal,
	}, nil
}

// AssignmentServed counts one served assignment.
func (e *Exporter) AssignmentServed(ctx context.Context, arm domain.Arm) {
	e.assignmentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("arm", string(arm))))
}

// AssignmentLogDropped counts one dropped assignment log write.
func (e *Exporter) AssignmentLogDropped(ctx context.Context) {
	e.logDropsTotal.Add(ctx, 1)
}

// GuardrailPause counts one automatic pause.
func (e *Exporter) GuardrailPause(ctx context.Context, breachedMetric string) {
	e.pausesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("metric", breachedMetric)))
}

// ReportSigned counts one signed report.
func (e *Exporter) ReportSigned(ctx context.Context) {
	e.reportsTotal.Add(ctx, 1)
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
