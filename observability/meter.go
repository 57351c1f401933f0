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

	"github.com/kbukum/fixturekit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name reported as service.name.
	ServiceName string
	// ServiceVersion is the fixturekit build version.
	ServiceVersion string
	// Environment is the run environment (development, ci, production).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows plain HTTP to the collector.
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns defaults for a local collector.
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

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The provider should be shut down on exit to flush metrics.
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

	readerOpts := []sdkmetric.PeriodicReaderOption{}
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

// Metrics holds the fixture and test instruments.
type Metrics struct {
	fixtureSetupTotal     metric.Int64Counter
	fixtureSetupDuration  metric.Float64Histogram
	fixtureTeardownErrors metric.Int64Counter
	testOutcomeTotal      metric.Int64Counter
	testDuration          metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	fixtureSetupTotal, err := meter.Int64Counter("fixture.setup.total",
		metric.WithDescription("Fixture setups by fixture, scope and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixture.setup.total counter: %w", err)
	}

	fixtureSetupDuration, err := meter.Float64Histogram("fixture.setup.duration",
		metric.WithDescription("Duration of fixture setup in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixture.setup.duration histogram: %w", err)
	}

	fixtureTeardownErrors, err := meter.Int64Counter("fixture.teardown.errors",
		metric.WithDescription("Failed fixture teardowns"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixture.teardown.errors counter: %w", err)
	}

	testOutcomeTotal, err := meter.Int64Counter("test.outcome.total",
		metric.WithDescription("Test invocations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test.outcome.total counter: %w", err)
	}

	testDuration, err := meter.Float64Histogram("test.duration",
		metric.WithDescription("Duration of test invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test.duration histogram: %w", err)
	}

	return &Metrics{
		fixtureSetupTotal:     fixtureSetupTotal,
		fixtureSetupDuration:  fixtureSetupDuration,
		fixtureTeardownErrors: fixtureTeardownErrors,
		testOutcomeTotal:      testOutcomeTotal,
		testDuration:          testDuration,
	}, nil
}

// RecordFixtureSetup records one fixture setup.
func (m *Metrics) RecordFixtureSetup(ctx context.Context, fixture, scope string, err error, duration time.Duration) {
	m.fixtureSetupTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fixture", fixture),
		attribute.String("scope", scope),
		attribute.String("status", statusOf(err)),
	))
	m.fixtureSetupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("fixture", fixture),
		attribute.String("scope", scope),
	))
}

// RecordFixtureTeardown counts a teardown failure. Successful teardowns
// are not counted.
func (m *Metrics) RecordFixtureTeardown(ctx context.Context, fixture, scope string, err error) {
	if err == nil {
		return
	}
	m.fixtureTeardownErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fixture", fixture),
		attribute.String("scope", scope),
	))
}

// RecordTestOutcome records one finished test invocation.
func (m *Metrics) RecordTestOutcome(ctx context.Context, status string, duration time.Duration) {
	m.testOutcomeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.testDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
