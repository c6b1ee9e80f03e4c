package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"opuspress/internal/fetch"
	"opuspress/internal/logging"
	"opuspress/internal/metrics"
	"opuspress/internal/pipeline"
)

func pipelineRequest(userID string, source fetch.Source, reporter pipeline.Reporter) pipeline.Request {
	return pipeline.Request{UserID: userID, Source: source, Reporter: reporter}
}

// httpReporter streams the encoded artifact back on the request's
// response. Intermediate status transitions are logged only; the HTTP
// caller learns the outcome from the response itself.
type httpReporter struct {
	w      http.ResponseWriter
	logger *slog.Logger

	// streaming flips once response headers are written; after that
	// point a failure can only abort the connection.
	streaming bool
}

func (r *httpReporter) Announce(ctx context.Context, job pipeline.Job) {
	r.logger.InfoContext(ctx, "job accepted",
		logging.String("source", job.SourceName),
		logging.String("tier", string(job.Tier)),
		logging.Bool("speech_optimized", job.SpeechOptimized))
}

func (r *httpReporter) UpdateStatus(ctx context.Context, job pipeline.Job) {
	r.logger.DebugContext(ctx, "job status", logging.String("status", string(job.Status)))
}

// DeliverArtifact copies the artifact onto the wire while the job's
// working directory still exists.
func (r *httpReporter) DeliverArtifact(ctx context.Context, job pipeline.Job, artifactPath string) error {
	file, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	header := r.w.Header()
	header.Set("Content-Type", "audio/ogg")
	header.Set("Content-Length", strconv.FormatInt(job.OutputBytes, 10))
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(artifactPath)))
	header.Set("X-Job-Id", job.ID)
	header.Set("X-Compression-Ratio", metrics.FormatRatio(job.CompressionRatio))
	header.Set("X-Source-Duration", metrics.FormatDuration(job.DurationSeconds))
	header.Set("X-Input-Bytes", strconv.FormatInt(job.InputBytes, 10))
	header.Set("X-Caption", job.Caption())
	r.w.WriteHeader(http.StatusOK)
	r.streaming = true

	if _, err := io.Copy(r.w, file); err != nil {
		return fmt.Errorf("stream artifact: %w", err)
	}
	return nil
}

func (r *httpReporter) DropStatus(context.Context, pipeline.Job) {}
