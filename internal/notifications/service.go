package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"opuspress/internal/config"
	"opuspress/internal/metrics"
)

const userAgent = "opuspress/0.1.0"

// JobSummary carries the fields worth pushing for a finished encode.
type JobSummary struct {
	SourceName       string
	Tier             string
	DurationSeconds  float64
	CompressionRatio float64
	Diagnostic       string
}

// Service defines the notification surface exposed to the pipeline and daemon.
type Service interface {
	NotifyJobCompleted(ctx context.Context, summary JobSummary) error
	NotifyJobFailed(ctx context.Context, summary JobSummary) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.Completions,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	errors      bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, summary JobSummary) error {
	if !n.completions {
		return nil
	}
	message := fmt.Sprintf("Encoded %s (%s): %s smaller, runtime %s",
		strings.TrimSpace(summary.SourceName),
		summary.Tier,
		metrics.FormatRatio(summary.CompressionRatio),
		metrics.FormatDuration(summary.DurationSeconds))
	data := payload{
		title:   "opuspress - Encode Complete",
		message: message,
		tags:    []string{"opuspress", "encode", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, summary JobSummary) error {
	if !n.errors {
		return nil
	}
	message := fmt.Sprintf("Encode failed: %s", strings.TrimSpace(summary.SourceName))
	if diag := strings.TrimSpace(summary.Diagnostic); diag != "" {
		message = fmt.Sprintf("%s\n%s", message, diag)
	}
	data := payload{
		title:    "opuspress - Encode Failed",
		message:  message,
		tags:     []string{"opuspress", "encode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "opuspress - Error",
		message:  builder.String(),
		tags:     []string{"opuspress", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "opuspress - Test",
		message:  "Notification system test",
		tags:     []string{"opuspress", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, JobSummary) error { return nil }
func (noopService) NotifyJobFailed(context.Context, JobSummary) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
