package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"opuspress/internal/config"
	"opuspress/internal/encode"
	"opuspress/internal/fetch"
	"opuspress/internal/ledger"
	"opuspress/internal/logging"
	"opuspress/internal/media/ffprobe"
	"opuspress/internal/metrics"
	"opuspress/internal/notifications"
	"opuspress/internal/opus"
	"opuspress/internal/services"
	"opuspress/internal/session"
	"opuspress/internal/telemetry"
	"opuspress/internal/textutil"
)

// Prober answers duration lookups; failures degrade to unknown.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, bool)
}

// Runner executes the external encoder under a deadline.
type Runner interface {
	Run(ctx context.Context, params opus.EncodeParameters, inputPath, outputPath string) (encode.Result, error)
	Timeout() time.Duration
}

// Recorder persists terminal job entries. Satisfied by *ledger.Store.
type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// Request is one unit of work handed to the pipeline.
type Request struct {
	UserID   string
	Source   fetch.Source
	Reporter Reporter
}

// Pipeline orchestrates encode jobs. It is safe for concurrent use;
// the only shared mutable state is the session store, which guards
// itself.
type Pipeline struct {
	cfg      *config.Config
	sessions *session.Store
	prober   Prober
	runner   Runner
	notifier notifications.Service
	recorder Recorder
	logger   *slog.Logger
	gate     *gate
}

// New wires a Pipeline from its collaborators. notifier and recorder
// may be nil; prober and runner are built from config when nil.
func New(cfg *config.Config, sessions *session.Store, notifier notifications.Service, recorder Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	componentLogger := logging.NewComponentLogger(logger, "pipeline")
	return &Pipeline{
		cfg:      cfg,
		sessions: sessions,
		prober:   ffprobe.NewProber(cfg.FFprobeBinary(), cfg.ProbeTimeout(), componentLogger),
		runner:   encode.NewRunner(cfg.FFmpegBinary(), cfg.EncodeTimeout(), componentLogger),
		notifier: notifier,
		recorder: recorder,
		logger:   componentLogger,
		gate:     newGate(cfg.Encoding.MaxConcurrent),
	}
}

// WithProber replaces the duration prober. Used by tests and health checks.
func (p *Pipeline) WithProber(prober Prober) *Pipeline {
	p.prober = prober
	return p
}

// WithRunner replaces the encode runner.
func (p *Pipeline) WithRunner(runner Runner) *Pipeline {
	p.runner = runner
	return p
}

// ConcurrencyLimit reports the encode slot count.
func (p *Pipeline) ConcurrencyLimit() int {
	return p.gate.limit()
}

// Process drives one request to a terminal state and returns the final
// job. The returned error mirrors job failure for callers that prefer
// error handling over inspecting the job; the job's working directory
// is gone by the time Process returns, on every path.
func (p *Pipeline) Process(ctx context.Context, req Request) (Job, error) {
	reporter := req.Reporter
	if reporter == nil {
		reporter = NewLogReporter(p.logger)
	}

	job := Job{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SourceName: req.Source.Name(),
		Status:     StatusQueued,
	}
	settings := p.sessions.GetOrDefault(req.UserID)
	job.Tier = settings.Tier
	job.SpeechOptimized = settings.SpeechOptimized
	params := opus.Resolve(settings.Tier, settings.SpeechOptimized)

	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithUserID(ctx, req.UserID)
	logger := logging.WithContext(ctx, p.logger)

	reporter.Announce(ctx, job)

	if err := p.gate.acquire(ctx); err != nil {
		return p.fail(ctx, reporter, job, time.Now(),
			services.Wrap(services.ErrTransient, "pipeline", "acquire slot", "cancelled while waiting for an encode slot", err))
	}
	defer p.gate.release()

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	start := time.Now()

	ws, err := newWorkspace(p.cfg.Paths.StagingDir, job.ID)
	if err != nil {
		return p.fail(ctx, reporter, job, start,
			services.Wrap(services.ErrConfiguration, "pipeline", "create workspace", "cannot create working directory", err))
	}
	// Cleanup is unconditional: panics in the encode step and caller
	// cancellation both still remove the directory.
	defer func() {
		if removeErr := ws.Remove(); removeErr != nil {
			logger.Error("working directory cleanup failed",
				logging.String("dir", ws.Dir()),
				logging.Error(removeErr))
		}
	}()

	job, err = p.run(ctx, reporter, logger, job, params, req.Source, ws)
	job.Elapsed = time.Since(start)
	if err != nil {
		return p.fail(ctx, reporter, job, start, err)
	}

	job.Status = StatusCompleted
	reporter.UpdateStatus(ctx, job)
	reporter.DropStatus(ctx, job)
	p.finish(ctx, logger, job)
	return job, nil
}

// run executes the fallible middle of the job: fetch, probe, encode,
// deliver. It returns the job enriched with whatever it learned before
// any failure.
func (p *Pipeline) run(ctx context.Context, reporter Reporter, logger *slog.Logger, job Job, params opus.EncodeParameters, source fetch.Source, ws workspace) (Job, error) {
	job.Status = StatusFetching
	reporter.UpdateStatus(ctx, job)

	sourcePath, sourceSize, err := source.Materialize(ctx, ws.Dir())
	if err != nil {
		return job, err
	}
	if sourceSize == 0 {
		return job, services.Wrap(services.ErrValidation, "pipeline", "validate source", "source file is empty", nil)
	}
	job.InputBytes = sourceSize
	logger.Info("source ready",
		logging.String("source", job.SourceName),
		logging.Int64("bytes", sourceSize),
		logging.String("bitrate", params.Bitrate()),
		logging.String("mode", params.ModeLabel()))

	job.Status = StatusProbing
	reporter.UpdateStatus(ctx, job)
	job.DurationSeconds, job.DurationKnown = p.prober.Duration(ctx, sourcePath)

	job.Status = StatusEncoding
	reporter.UpdateStatus(ctx, job)

	outputPath := ws.Join(outputName(job.SourceName))
	result, err := p.runner.Run(ctx, params, sourcePath, outputPath)
	if err != nil {
		logger.Error("encode failed",
			logging.Duration("elapsed", result.Elapsed),
			logging.Bool("timed_out", result.TimedOut),
			logging.String("diagnostic", result.Diagnostic))
		return job, err
	}

	outputInfo, statErr := os.Stat(outputPath)
	if statErr != nil || outputInfo.Size() == 0 {
		return job, services.Wrap(services.ErrExternalTool, "pipeline", "verify output",
			"encoder exited cleanly but produced no output", statErr)
	}
	job.OutputBytes = outputInfo.Size()
	job.CompressionRatio = metrics.CompressionRatio(job.InputBytes, job.OutputBytes)

	job.Status = StatusReporting
	reporter.UpdateStatus(ctx, job)
	if err := reporter.DeliverArtifact(ctx, job, outputPath); err != nil {
		return job, services.Wrap(services.ErrTransient, "pipeline", "deliver artifact", "artifact delivery failed", err)
	}
	return job, nil
}

// fail finalizes a job on the failure path: terminal transition,
// ledger entry, metrics, and an operator notification.
func (p *Pipeline) fail(ctx context.Context, reporter Reporter, job Job, start time.Time, err error) (Job, error) {
	job.Status = StatusFailed
	job.FailureKind = services.FailureKind(err)
	job.Diagnostic = textutil.TruncatePreview(err.Error(), textutil.PreviewLimit)
	if job.Elapsed == 0 {
		job.Elapsed = time.Since(start)
	}

	logger := logging.WithContext(ctx, p.logger)
	logger.Error("job failed",
		logging.String("failure_kind", job.FailureKind),
		logging.Duration("elapsed", job.Elapsed),
		logging.Error(err))

	reporter.UpdateStatus(ctx, job)
	p.finish(ctx, logger, job)
	return job, err
}

// finish records the terminal job in the ledger, metrics, and ntfy.
// Bookkeeping failures are logged and never change the job outcome.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, job Job) {
	telemetry.ObserveJob(string(job.Status), string(job.Tier), job.FailureKind,
		job.Elapsed.Seconds(), job.InputBytes, job.OutputBytes)

	if p.recorder != nil {
		entry := ledger.Entry{
			JobID:            job.ID,
			UserID:           job.UserID,
			SourceName:       job.SourceName,
			Tier:             string(job.Tier),
			SpeechOptimized:  job.SpeechOptimized,
			Outcome:          textutil.Ternary(job.Succeeded(), ledger.OutcomeCompleted, ledger.OutcomeFailed),
			FailureKind:      job.FailureKind,
			Diagnostic:       job.Diagnostic,
			InputBytes:       job.InputBytes,
			OutputBytes:      job.OutputBytes,
			DurationSeconds:  job.DurationSeconds,
			CompressionRatio: job.CompressionRatio,
			Elapsed:          job.Elapsed,
		}
		if err := p.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
			logger.Error("ledger write failed", logging.Error(err))
		}
	}

	notifyCtx := context.WithoutCancel(ctx)
	summary := notifications.JobSummary{
		SourceName:       job.SourceName,
		Tier:             string(job.Tier),
		DurationSeconds:  job.DurationSeconds,
		CompressionRatio: job.CompressionRatio,
		Diagnostic:       job.Diagnostic,
	}
	var notifyErr error
	if job.Succeeded() {
		notifyErr = p.notifier.NotifyJobCompleted(notifyCtx, summary)
	} else {
		notifyErr = p.notifier.NotifyJobFailed(notifyCtx, summary)
	}
	if notifyErr != nil {
		logger.Warn("notification failed", logging.Error(notifyErr))
	}
}

// outputName derives the artifact filename from the source name.
func outputName(sourceName string) string {
	base := textutil.SanitizeFileName(sourceName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "output"
	}
	return base + ".opus"
}
