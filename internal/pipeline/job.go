package pipeline

import (
	"fmt"
	"time"

	"opuspress/internal/metrics"
	"opuspress/internal/opus"
)

// Status represents the lifecycle of an encode job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusFetching  Status = "fetching"
	StatusProbing   Status = "probing"
	StatusEncoding  Status = "encoding"
	StatusReporting Status = "reporting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status ends the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the state carried through one pipeline invocation. It is
// owned exclusively by that invocation; reporters receive copies.
type Job struct {
	ID              string
	UserID          string
	SourceName      string
	Tier            opus.Tier
	SpeechOptimized bool
	Status          Status

	InputBytes       int64
	OutputBytes      int64
	DurationSeconds  float64
	DurationKnown    bool
	CompressionRatio float64
	Elapsed          time.Duration

	// FailureKind and Diagnostic are set only on failed jobs.
	// Diagnostic is the bounded user-facing preview; the full text
	// goes to the logs.
	FailureKind string
	Diagnostic  string
}

// Succeeded reports whether the job reached StatusCompleted.
func (j Job) Succeeded() bool {
	return j.Status == StatusCompleted
}

// Caption renders the artifact summary reporters attach to a delivery.
func (j Job) Caption() string {
	mode := "speech optimized"
	if !j.SpeechOptimized {
		mode = "general audio"
	}
	return fmt.Sprintf("%s, %s | duration %s | %s smaller | %s",
		j.Tier.Bitrate(), mode,
		metrics.FormatDuration(j.DurationSeconds),
		metrics.FormatRatio(j.CompressionRatio),
		metrics.FormatBytes(j.OutputBytes))
}
