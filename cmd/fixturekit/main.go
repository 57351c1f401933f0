// Command fixturekit runs and inspects the built-in demo fixture suite.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
