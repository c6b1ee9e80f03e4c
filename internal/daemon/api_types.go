package daemon

import (
	"time"

	"opuspress/internal/ledger"
	"opuspress/internal/metrics"
	"opuspress/internal/session"
)

// settingsPayload is the wire form of a user's encoder preferences.
// On updates, absent fields keep their current value, so callers can
// change the tier without also spelling out the speech flag.
type settingsPayload struct {
	User            string `json:"user"`
	Tier            string `json:"tier"`
	BitrateKbps     int    `json:"bitrate_kbps"`
	SpeechOptimized *bool  `json:"speech_optimized,omitempty"`
}

func settingsPayloadFrom(userID string, settings session.Settings) settingsPayload {
	return settingsPayload{
		User:            userID,
		Tier:            string(settings.Tier),
		BitrateKbps:     settings.Tier.BitrateKbps(),
		SpeechOptimized: &settings.SpeechOptimized,
	}
}

// jobView is the wire form of one recorded job.
type jobView struct {
	JobID            string    `json:"job_id"`
	User             string    `json:"user"`
	Source           string    `json:"source"`
	Tier             string    `json:"tier"`
	SpeechOptimized  bool      `json:"speech_optimized"`
	Outcome          string    `json:"outcome"`
	FailureKind      string    `json:"failure_kind,omitempty"`
	Diagnostic       string    `json:"diagnostic,omitempty"`
	InputBytes       int64     `json:"input_bytes"`
	OutputBytes      int64     `json:"output_bytes"`
	Duration         string    `json:"duration"`
	CompressionRatio string    `json:"compression_ratio"`
	ElapsedMs        int64     `json:"elapsed_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

type jobListResponse struct {
	Jobs []jobView `json:"jobs"`
}

type statusResponse struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	HistoryDBPath    string             `json:"history_db_path"`
	LockFilePath     string             `json:"lock_file_path"`
	ConcurrencyLimit int                `json:"concurrency_limit"`
	Dependencies     []DependencyStatus `json:"dependencies"`
	JobsCompleted    int64              `json:"jobs_completed"`
	JobsFailed       int64              `json:"jobs_failed"`
}

type errorResponse struct {
	Error       string `json:"error"`
	FailureKind string `json:"failure_kind,omitempty"`
	JobID       string `json:"job_id,omitempty"`
}

func jobViewFromEntry(entry ledger.Entry) jobView {
	return jobView{
		JobID:            entry.JobID,
		User:             entry.UserID,
		Source:           entry.SourceName,
		Tier:             entry.Tier,
		SpeechOptimized:  entry.SpeechOptimized,
		Outcome:          entry.Outcome,
		FailureKind:      entry.FailureKind,
		Diagnostic:       entry.Diagnostic,
		InputBytes:       entry.InputBytes,
		OutputBytes:      entry.OutputBytes,
		Duration:         metrics.FormatDuration(entry.DurationSeconds),
		CompressionRatio: metrics.FormatRatio(entry.CompressionRatio),
		ElapsedMs:        entry.Elapsed.Milliseconds(),
		CreatedAt:        entry.CreatedAt,
	}
}
