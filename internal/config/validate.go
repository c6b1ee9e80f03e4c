package config

import (
	"errors"
	"fmt"

	"opuspress/internal/opus"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if err := ensurePositiveMap(map[string]int{
		"encoding.max_source_mib":        c.Encoding.MaxSourceMiB,
		"encoding.timeout_seconds":       c.Encoding.TimeoutSeconds,
		"encoding.probe_timeout_seconds": c.Encoding.ProbeTimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if _, ok := opus.TierForBitrate(c.Defaults.BitrateKbps); !ok {
		return fmt.Errorf("defaults.bitrate_kbps must be one of %v", opus.BitrateChoices())
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, value)
		}
	}
	return nil
}
