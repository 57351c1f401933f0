package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/fixturekit/version"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fixturekit",
		Short: "Resolve, run and inspect fixture-driven test suites",
		Long: `fixturekit resolves test fixtures into a dependency-ordered plan,
caches instances per scope and tears them down in reverse order.

The run and plan commands operate on the built-in demo suite.`,
		Version: version.Get().Short(),
		// Errors are reported by the command; usage is noise.
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "fixturekit version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./fixturekit.yml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", ".env file to load before reading config")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}
