// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//   - Prober: timeout-bounded duration lookup that degrades instead of failing
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns a parsed Result
//
// Probe failures never abort an encode: a source that ffprobe cannot
// read may still transcode fine, so Prober reports an unknown duration
// and lets the pipeline continue.
package ffprobe
