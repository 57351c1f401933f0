// Package logger provides structured logging for fixturekit using zerolog.
//
// The resolver logs fixture setup, reuse and teardown at debug level; the
// runner logs session and test outcomes at info level.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("resolver")
//	log.Debug("fixture created", logger.Fields(logger.FieldFixture, "db"))
package logger
