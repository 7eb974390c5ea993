package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/papercomputeco/rolodex/pkg/logger"
)

// Config configures metric export.
type Config struct {
	Enabled        bool
	Endpoint       string // OTLP gRPC endpoint, e.g. "localhost:4317"
	Insecure       bool
	Interval       time.Duration
	ServiceName    string
	ServiceVersion string
	Logger         *slog.Logger
}

// Provider owns the meter provider backing a Metrics.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger
}

// NewProvider builds an OTLP exporting provider, or a no-op one when export
// is disabled.
func NewProvider(ctx context.Context, c Config) (*Provider, error) {
	p := &Provider{logger: c.Logger}
	if p.logger == nil {
		p.logger = logger.Nop()
	}

	if !c.Enabled {
		p.meter = noop.NewMeterProvider().Meter(meterName)
		return p, nil
	}

	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", c.ServiceName),
			attribute.String("service.version", c.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(c.Endpoint),
	}
	if c.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(c.Interval),
		)),
	)
	p.meter = p.meterProvider.Meter(meterName)

	p.logger.Info("metrics export enabled",
		"endpoint", c.Endpoint,
		"interval", c.Interval,
	)

	return p, nil
}

// Metrics creates the rolodex instruments on the provider's meter.
func (p *Provider) Metrics() (*Metrics, error) {
	return New(p.meter)
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metric provider: %w", err)
	}
	return nil
}
