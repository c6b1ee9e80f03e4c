package config

const (
	defaultStagingDir          = "~/.local/share/opuspress/staging"
	defaultLogDir              = "~/.local/share/opuspress/logs"
	defaultAPIBind             = "127.0.0.1:8643"
	defaultMaxSourceMiB        = 150
	defaultTimeoutSeconds      = 1800
	defaultProbeTimeoutSeconds = 30
	defaultBitrateKbps         = 24
	defaultSpeechOptimized     = true
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Encoding: Encoding{
			MaxSourceMiB:        defaultMaxSourceMiB,
			TimeoutSeconds:      defaultTimeoutSeconds,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		},
		Defaults: Defaults{
			BitrateKbps:     defaultBitrateKbps,
			SpeechOptimized: defaultSpeechOptimized,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
