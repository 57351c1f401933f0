// Package util provides small generic helpers shared across fixturekit
// packages.
package util
