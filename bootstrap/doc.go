// Package bootstrap wires configuration, logging, telemetry and runner
// sessions together for fixturekit command-line tools.
//
// # Quick Start
//
//	cfg, _ := config.Load()
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    return err
//	}
//	return app.RunTask(ctx, func(ctx context.Context) error {
//	    _, err := app.Session("demo", reg).Run(ctx, tests)
//	    return err
//	})
//
// RunTask cancels the task on SIGINT or SIGTERM, runs OnStop hooks and
// flushes telemetry within the graceful timeout.
package bootstrap
