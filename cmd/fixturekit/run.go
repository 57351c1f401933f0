package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kbukum/fixturekit/bootstrap"
	"github.com/kbukum/fixturekit/config"
	"github.com/kbukum/fixturekit/internal/demo"
	"github.com/kbukum/fixturekit/runner"
)

var errTestsFailed = errors.New("tests failed")

type runOptions struct {
	parallel int
	failFast bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo suite and print a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Runner.Parallelism = opts.parallel
			}
			if cmd.Flags().Changed("fail-fast") {
				cfg.Runner.FailFast = opts.failFast
			}

			app, err := bootstrap.NewApp(cfg, bootstrap.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), app)
		},
	}
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 1, "maximum tests running concurrently per group")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "skip remaining tests after the first failure")
	return cmd
}

// runDemo runs the demo suite inside app and renders the summary.
func runDemo(ctx context.Context, app *bootstrap.App) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := app.RunTask(ctx, func(ctx context.Context) error {
		_, err := runner.RunAll(ctx, runner.Suite{
			Session: app.Session("demo", demo.Registry()),
			Tests:   demo.Tests(),
		})
		return err
	})
	app.Render()
	if err != nil {
		return err
	}
	if app.Summary.Failed() {
		return errTestsFailed
	}
	return nil
}

func loadConfig(root *rootOptions) (*config.Config, error) {
	var opts []config.LoaderOption
	if root.configFile != "" {
		opts = append(opts, config.WithConfigFile(root.configFile))
	}
	if root.envFile != "" {
		opts = append(opts, config.WithEnvFile(root.envFile))
	}
	return config.Load(opts...)
}
