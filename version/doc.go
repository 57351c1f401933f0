// Package version reports fixturekit build information.
//
// Values are set at compile time via -ldflags and otherwise filled from
// the module build info:
//
//	go build -ldflags "-X github.com/kbukum/fixturekit/version.Version=1.0.0" ./cmd/fixturekit
package version
