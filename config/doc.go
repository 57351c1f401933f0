// Package config loads fixturekit settings.
//
// Values come from a YAML file, an optional .env file and FIXTUREKIT_*
// environment variables, in increasing precedence. Viper does the merging;
// godotenv reads .env files.
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("fixturekit.yml"))
//
// Environment variables map onto nested keys by underscores, so
// FIXTUREKIT_RUNNER_PARALLELISM sets runner.parallelism.
package config
