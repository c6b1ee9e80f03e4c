// Package config loads, normalizes, and validates the TOML configuration
// consumed by the opuspress daemon and CLI.
package config
