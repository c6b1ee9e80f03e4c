package pipeline

import (
	"context"
	"log/slog"

	"opuspress/internal/logging"
)

// Reporter receives job lifecycle notifications. Implementations live
// at the transport edge (HTTP API, CLI); the pipeline calls them and
// never looks back, except for artifact delivery, which must succeed
// for the job to complete.
type Reporter interface {
	// Announce is called once when the job is accepted.
	Announce(ctx context.Context, job Job)
	// UpdateStatus is called on every state transition, including the
	// terminal one.
	UpdateStatus(ctx context.Context, job Job)
	// DeliverArtifact hands over the encoded file while the job's
	// working directory still exists. The callee must copy or stream
	// the file before returning; the path is invalid afterwards.
	DeliverArtifact(ctx context.Context, job Job, artifactPath string) error
	// DropStatus is called after a successful delivery so transports
	// with ephemeral progress indicators can retract them.
	DropStatus(ctx context.Context, job Job)
}

// LogReporter writes job transitions to the logger. It backs
// fire-and-forget intake paths and tests.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter builds a Reporter that only logs.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Announce(ctx context.Context, job Job) {
	r.logger.InfoContext(ctx, "job accepted",
		logging.String("source", job.SourceName),
		logging.String("tier", string(job.Tier)),
		logging.Bool("speech_optimized", job.SpeechOptimized))
}

func (r *LogReporter) UpdateStatus(ctx context.Context, job Job) {
	if job.Status == StatusFailed {
		r.logger.WarnContext(ctx, "job failed",
			logging.String("status", string(job.Status)),
			logging.String("failure_kind", job.FailureKind),
			logging.String("diagnostic", job.Diagnostic))
		return
	}
	r.logger.InfoContext(ctx, "job status",
		logging.String("status", string(job.Status)))
}

func (r *LogReporter) DeliverArtifact(ctx context.Context, job Job, artifactPath string) error {
	r.logger.InfoContext(ctx, "artifact ready",
		logging.String("path", artifactPath),
		logging.String("caption", job.Caption()))
	return nil
}

func (r *LogReporter) DropStatus(context.Context, Job) {}
