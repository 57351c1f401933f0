// Package observability exports fixture and test activity through
// OpenTelemetry.
//
// Tracing and metrics:
//
//	tel, err := observability.Setup(ctx, cfg, version.Short())
//	defer tel.Shutdown(ctx)
//
//	obs := tel.Observer()
//	sess := runner.NewSession("suite", reg,
//	    runner.WithObserver(obs),
//	    runner.WithReporter(obs),
//	)
//
// Every fixture setup and teardown becomes a span and feeds the
// fixture.setup.* and fixture.teardown.errors instruments; every test
// invocation becomes a span and feeds test.outcome.total and test.duration.
package observability
