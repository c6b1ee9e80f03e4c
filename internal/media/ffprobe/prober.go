package ffprobe

import (
	"context"
	"log/slog"
	"time"

	"opuspress/internal/logging"
)

// Prober answers "how long is this recording" with a bounded ffprobe
// call. It never returns an error: the duration only decorates the job
// report, so an unreadable source degrades to an unknown duration.
type Prober struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber constructs a Prober around the given ffprobe binary. A
// zero timeout disables the probe deadline.
func NewProber(binary string, timeout time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Prober{binary: binary, timeout: timeout, logger: logger}
}

// Duration returns the source duration in seconds and whether it is
// known. Probe failures and timeouts are logged and reported as
// unknown.
func (p *Prober) Duration(ctx context.Context, path string) (float64, bool) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := Inspect(ctx, p.binary, path)
	if err != nil {
		p.logger.Warn("duration probe failed, continuing without duration",
			logging.String("source", path),
			logging.Error(err))
		return 0, false
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return 0, false
	}
	return duration, true
}
