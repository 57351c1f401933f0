package observability

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/fixturekit/config"
)

// Telemetry bundles the tracer and instruments used by an Observer, plus
// the shutdown hooks of the providers that back them.
type Telemetry struct {
	Tracer  trace.Tracer
	Metrics *Metrics

	shutdown []func(context.Context) error
}

// Setup initializes exporters from cfg.Telemetry. When telemetry is
// disabled the global (no-op by default) providers are used and nothing is
// exported.
func Setup(ctx context.Context, cfg *config.Config, version string) (*Telemetry, error) {
	tel := &Telemetry{}

	if cfg.Telemetry.Enabled {
		tc := TracerConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Telemetry.Endpoint,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRate:     cfg.Telemetry.SampleRate,
		}
		tp, err := InitTracer(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("observability: %w", err)
		}
		tel.shutdown = append(tel.shutdown, tp.Shutdown)

		mc := DefaultMeterConfig(cfg.Name)
		mc.ServiceVersion = version
		mc.Environment = cfg.Environment
		mc.Endpoint = cfg.Telemetry.Endpoint
		mc.Insecure = cfg.Telemetry.Insecure
		mp, err := InitMeter(ctx, &mc)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("observability: %w", err)
		}
		tel.shutdown = append(tel.shutdown, mp.Shutdown)
	}

	metrics, err := NewMetrics(Meter(defaultTracerName))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("observability: %w", err)
	}
	tel.Tracer = Tracer(defaultTracerName)
	tel.Metrics = metrics
	return tel, nil
}

// Observer returns an Observer over the telemetry's tracer and metrics.
func (t *Telemetry) Observer() *Observer {
	return NewObserver(t.Tracer, t.Metrics)
}

// Shutdown flushes and stops every provider Setup created.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return stderrors.Join(errs...)
}
