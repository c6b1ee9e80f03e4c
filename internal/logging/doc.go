// Package logging configures slog output for the daemon and CLI and provides
// attribute helpers shared across components.
package logging
