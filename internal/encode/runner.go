package encode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"opuspress/internal/logging"
	"opuspress/internal/opus"
	"opuspress/internal/services"
)

// stderrCaptureLimit bounds how much encoder output is held in memory
// for diagnostics. ffmpeg error output is short; anything beyond this
// is noise from a malfunctioning source.
const stderrCaptureLimit = 64 * 1024

// killGrace is how long Wait allows the process to exit after its
// group receives SIGKILL before the pipe readers are abandoned.
const killGrace = 5 * time.Second

// Result carries the outcome details of a single encoder invocation.
type Result struct {
	TimedOut   bool
	Diagnostic string
	Elapsed    time.Duration
}

// Runner executes ffmpeg encode invocations under a hard deadline.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a Runner around the given ffmpeg binary. A zero
// timeout disables the deadline.
func NewRunner(binary string, timeout time.Duration, logger *slog.Logger) *Runner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{binary: binary, timeout: timeout, logger: logger}
}

// Timeout reports the configured encode deadline.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run encodes inputPath to outputPath with the resolved parameters.
// On failure the returned error is tagged for classification
// (services.ErrTimeout for a deadline kill, services.ErrExternalTool
// otherwise) and Result.Diagnostic holds the message shown to users.
func (r *Runner) Run(ctx context.Context, params opus.EncodeParameters, inputPath, outputPath string) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := commandArgs(params, inputPath, outputPath)
	cmd := exec.CommandContext(runCtx, r.binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = killGrace
	cmd.Cancel = func() error {
		// Kill the whole group: ffmpeg may have forked helpers that
		// would otherwise outlive it and hold the output file open.
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	stderr := newBoundedBuffer(stderrCaptureLimit)
	cmd.Stderr = stderr

	r.logger.Debug("starting encoder",
		logging.String("binary", r.binary),
		logging.String("bitrate", params.Bitrate()),
		logging.String("mode", params.ModeLabel()),
		logging.String("output", outputPath))

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Diagnostic: stderr.String(),
		Elapsed:    time.Since(start),
	}
	if err == nil {
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.TimedOut = true
		result.Diagnostic = fmt.Sprintf("encoding timeout of %d seconds exceeded", int(r.timeout.Seconds()))
		return result, services.Wrap(services.ErrTimeout, "encoding", "run ffmpeg", result.Diagnostic, err)
	}
	if ctx.Err() != nil {
		return result, services.Wrap(services.ErrTransient, "encoding", "run ffmpeg", "encode cancelled", ctx.Err())
	}

	if result.Diagnostic == "" {
		result.Diagnostic = err.Error()
	}
	return result, services.Wrap(services.ErrExternalTool, "encoding", "run ffmpeg", result.Diagnostic, err)
}

// LookPath verifies the configured encoder binary is resolvable.
func (r *Runner) LookPath() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return services.Wrap(services.ErrConfiguration, "encoding", "locate ffmpeg", execErr.Err.Error(), nil)
		}
		return services.Wrap(services.ErrConfiguration, "encoding", "locate ffmpeg", err.Error(), nil)
	}
	return nil
}

// boundedBuffer keeps the first limit bytes written and drops the rest,
// tracking how much was discarded.
type boundedBuffer struct {
	mu      sync.Mutex
	limit   int
	data    []byte
	dropped int64
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.data)
	if remaining > 0 {
		take := min(remaining, len(p))
		b.data = append(b.data, p[:take]...)
		b.dropped += int64(len(p) - take)
	} else {
		b.dropped += int64(len(p))
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := strings.TrimSpace(string(b.data))
	if b.dropped > 0 {
		return fmt.Sprintf("%s\n[%d bytes of output truncated]", out, b.dropped)
	}
	return out
}
