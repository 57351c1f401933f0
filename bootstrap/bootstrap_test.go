package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/fixturekit/config"
	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/runner"
)

func newTestApp(t *testing.T, opts ...Option) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithLogger(logger.Nop()), WithVersion("1.0.0"), WithOutput(&out)}, opts...)
	app, err := NewApp(&config.Config{Name: "test-run"}, opts...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app, &out
}

func TestNewApp(t *testing.T) {
	app, _ := newTestApp(t)

	if app.Name != "test-run" {
		t.Errorf("expected name 'test-run', got %q", app.Name)
	}
	if app.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", app.Version)
	}
	if app.Cfg.Runner.Parallelism != 1 {
		t.Errorf("expected defaults applied, parallelism = %d", app.Cfg.Runner.Parallelism)
	}
	if app.Logger == nil || app.Summary == nil {
		t.Error("expected logger and summary to be set")
	}
	if app.Telemetry != nil {
		t.Error("telemetry should only be set up by RunTask")
	}
}

func TestNewApp_DefaultVersion(t *testing.T) {
	app, err := NewApp(&config.Config{}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.Version == "" {
		t.Error("expected version from build info")
	}
	if app.Name != config.DefaultName {
		t.Errorf("expected name %q, got %q", config.DefaultName, app.Name)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	_, err := NewApp(&config.Config{Environment: "staging"}, WithLogger(logger.Nop()))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunTask_Lifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	var order []string
	app.OnStart(func(context.Context) error {
		order = append(order, "start")
		return nil
	})
	app.OnStop(func(context.Context) error {
		order = append(order, "stop")
		return nil
	})

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		if app.Telemetry == nil {
			t.Error("telemetry should be set up before the task")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	want := "start,task,stop"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRunTask_TaskErrorWins(t *testing.T) {
	app, _ := newTestApp(t)
	errTask := errors.New("task failed")
	app.OnStop(func(context.Context) error { return errors.New("stop failed") })

	err := app.RunTask(context.Background(), func(context.Context) error { return errTask })
	if !errors.Is(err, errTask) {
		t.Errorf("RunTask() = %v, want %v", err, errTask)
	}
}

func TestRunTask_StopError(t *testing.T) {
	app, _ := newTestApp(t)
	errStop := errors.New("stop failed")
	app.OnStop(func(context.Context) error { return errStop })

	err := app.RunTask(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, errStop) {
		t.Errorf("RunTask() = %v, want %v", err, errStop)
	}
}

func TestRunTask_StartHookFails(t *testing.T) {
	app, _ := newTestApp(t)
	stopped := false
	app.OnStart(func(context.Context) error { return errors.New("no database") })
	app.OnStop(func(context.Context) error {
		stopped = true
		return nil
	})

	ran := false
	err := app.RunTask(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "onStart hook failed") {
		t.Errorf("RunTask() = %v, want onStart failure", err)
	}
	if ran {
		t.Error("task should not run when a start hook fails")
	}
	if !stopped {
		t.Error("stop hooks should run after a failed start")
	}
}

func TestRunTask_ContextCanceled(t *testing.T) {
	app, _ := newTestApp(t, WithGracefulTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	err := app.RunTask(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunTask() = %v, want context.Canceled", err)
	}
}

func TestSession_Summary(t *testing.T) {
	app, out := newTestApp(t)

	reg := fixture.NewRegistry()
	reg.MustRegister(fixture.New("answer", fixture.Const(42), fixture.WithScope(fixture.Session)))

	tests := []runner.Test{
		{Name: "test_answer", Module: "demo", Requires: []string{"answer"}, Func: func(_ context.Context, c *runner.Call) error {
			v, err := runner.Get[int](c, "answer")
			if err != nil {
				return err
			}
			if v != 42 {
				return errors.New("wrong answer")
			}
			return nil
		}},
		{Name: "test_broken", Module: "demo", Func: func(context.Context, *runner.Call) error {
			return errors.New("boom")
		}},
	}

	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		_, err := app.Session("demo", reg).Run(ctx, tests)
		return err
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if n := len(app.Summary.Reports()); n != 1 {
		t.Fatalf("expected 1 report, got %d", n)
	}
	if !app.Summary.Failed() {
		t.Error("summary should report the failing test")
	}

	app.Render()
	rendered := out.String()
	for _, want := range []string{"test-run 1.0.0", "demo::test_answer", "demo::test_broken", "boom", "1 passed", "1 failed"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("summary missing %q:\n%s", want, rendered)
		}
	}
}

func TestSummary_Empty(t *testing.T) {
	s := NewSummary("run", "dev")
	if s.Failed() {
		t.Error("empty summary should not fail")
	}
	if !strings.Contains(s.Render(), "no sessions run") {
		t.Errorf("unexpected render: %s", s.Render())
	}
}
