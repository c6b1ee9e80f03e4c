// Package metrics computes the human-facing numbers reported for a
// finished encode: how much smaller the output is and how long the
// source runs.
package metrics

import "fmt"

// CompressionRatio reports the size reduction from inputBytes to
// outputBytes as a percentage. The value is negative when the output
// grew and is never clamped. A non-positive input yields 0.
func CompressionRatio(inputBytes, outputBytes int64) float64 {
	if inputBytes <= 0 {
		return 0
	}
	return (1 - float64(outputBytes)/float64(inputBytes)) * 100
}

// FormatRatio renders a compression ratio with one decimal place, the
// precision used everywhere ratios are shown to users.
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio)
}

// FormatDuration renders a duration in whole seconds as M:SS, or
// H:MM:SS once the duration reaches an hour. Unknown durations
// (zero or negative) render as "N/A".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "N/A"
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatBytes renders a byte count using binary units with one
// decimal place, matching the size figures in job reports.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	idx := -1
	for value >= unit && idx < len(suffixes)-1 {
		value /= unit
		idx++
	}
	return fmt.Sprintf("%.1f %s", value, suffixes[idx])
}
