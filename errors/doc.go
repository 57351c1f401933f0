// Package errors provides the structured error type used across fixturekit.
//
// Every failure surfaced by the fixture resolver, the runner and the example
// services is an *AppError carrying a machine-readable ErrorCode, so callers
// can branch with HasCode instead of matching strings.
package errors
