package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/fixturekit/config"
	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/observability"
	"github.com/kbukum/fixturekit/runner"
	"github.com/kbukum/fixturekit/version"
)

// App owns the ambient state of a fixturekit process: validated config,
// logger, telemetry and the summary of every session it ran.
type App struct {
	Name      string
	Version   string
	Cfg       *config.Config
	Logger    *logger.Logger
	Telemetry *observability.Telemetry
	Summary   *Summary

	out             io.Writer
	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
}

// NewApp applies defaults to cfg, validates it and initializes the logger.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	app := &App{
		Name:            cfg.Name,
		Version:         o.version,
		Cfg:             cfg,
		out:             o.out,
		gracefulTimeout: 15 * time.Second,
	}
	if app.Version == "" {
		app.Version = version.Get().Short()
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(&cfg.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	app.Summary = NewSummary(cfg.Name, app.Version)
	return app, nil
}

// Session creates a runner session configured from the app: runner
// settings from config, the app logger, the summary as reporter and,
// once RunTask has set it up, telemetry as observer and reporter.
// Options given here are applied last.
func (a *App) Session(name string, reg *fixture.Registry, opts ...runner.Option) *runner.Session {
	base := []runner.Option{
		runner.WithConfig(a.Cfg.Runner),
		runner.WithLogger(a.Logger.WithComponent("runner")),
		runner.WithReporter(a.Summary),
	}
	if a.Telemetry != nil {
		obs := a.Telemetry.Observer()
		base = append(base, runner.WithObserver(obs), runner.WithReporter(obs))
	}
	return runner.NewSession(name, reg, append(base, opts...)...)
}

// RunTask sets up telemetry, runs OnStart hooks, then runs task with a
// context canceled on SIGINT or SIGTERM. OnStop hooks and telemetry
// shutdown always run afterwards. The task error takes precedence over
// shutdown errors.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("received signal, canceling task", map[string]interface{}{
				"signal": sig.String(),
			})
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	if stopErr := a.stop(); stopErr != nil {
		if taskErr != nil {
			return taskErr
		}
		return stopErr
	}
	return taskErr
}

// Render writes the run summary to the app output.
func (a *App) Render() {
	fmt.Fprint(a.out, a.Summary.Render())
}

func (a *App) startup(ctx context.Context) error {
	a.Logger.Info("starting", map[string]interface{}{
		"name":        a.Name,
		"version":     a.Version,
		"environment": a.Cfg.Environment,
	})

	tel, err := observability.Setup(ctx, a.Cfg, a.Version)
	if err != nil {
		return fmt.Errorf("telemetry setup failed: %w", err)
	}
	a.Telemetry = tel

	if err := runHooks(ctx, a.onStart); err != nil {
		_ = a.stop()
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	return nil
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("onStop hook error", map[string]interface{}{
			"error": err.Error(),
		})
		errs = append(errs, err)
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.Logger.Error("telemetry shutdown error", map[string]interface{}{
				"error": err.Error(),
			})
			errs = append(errs, err)
		}
	}

	a.Logger.Debug("shutdown complete")
	return stderrors.Join(errs...)
}
