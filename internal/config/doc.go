// Package config provides configuration management for vodarr.
//
// Configuration is loaded from environment variables, optionally seeded from a
// .env file in the working directory. The package covers:
//   - provider base URL and credentials
//   - download and data directories
//   - HTTP server address
//   - fetch mode, retry policy and scan interval
//
// Values are validated during startup so the process fails fast on bad input.
package config
