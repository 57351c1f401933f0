package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/fixturekit/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fixturekit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fixturekit version %s\n", version.Get())
		},
	}
}
