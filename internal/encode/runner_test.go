package encode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"opuspress/internal/opus"
	"opuspress/internal/services"
)

func fakeEncoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake encoder: %v", err)
	}
	return path
}

func speechParams() opus.EncodeParameters {
	return opus.Resolve(opus.TierMid, true)
}

func TestCommandArgsSpeechProfile(t *testing.T) {
	args := commandArgs(opus.Resolve(opus.TierLow, true), "in.mp3", "out.opus")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-y",
		"-i in.mp3",
		"-c:a libopus",
		"-b:a 16k",
		"-vbr on",
		"-compression_level 10",
		"-application voip",
		"-frame_duration 20",
		"-packet_loss 3",
		"-complexity 10",
		"-osce_bwe 1",
		"-ac 1",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "out.opus" {
		t.Fatalf("output path must be last: %v", args)
	}
}

func TestCommandArgsGeneralProfile(t *testing.T) {
	args := commandArgs(opus.Resolve(opus.TierHigh, false), "in.flac", "out.opus")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-b:a 32k") || !strings.Contains(joined, "-application audio") {
		t.Fatalf("unexpected args: %s", joined)
	}
	if !strings.Contains(joined, "-packet_loss 0") {
		t.Fatalf("general profile must disable packet loss: %s", joined)
	}
	if strings.Contains(joined, "-ac ") {
		t.Fatalf("general profile must not force channel count: %s", joined)
	}
}

func TestRunSuccess(t *testing.T) {
	binary := fakeEncoder(t, `
out=""
for arg in "$@"; do out="$arg"; done
printf 'opus' > "$out"`)
	runner := NewRunner(binary, 10*time.Second, nil)

	output := filepath.Join(t.TempDir(), "out.opus")
	result, err := runner.Run(context.Background(), speechParams(), "in.mp3", output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TimedOut {
		t.Fatal("unexpected timeout flag")
	}
	if data, err := os.ReadFile(output); err != nil || string(data) != "opus" {
		t.Fatalf("output = %q err = %v", data, err)
	}
}

func TestRunFailureCapturesStderr(t *testing.T) {
	binary := fakeEncoder(t, `echo "in.mp3: Invalid data found when processing input" >&2; exit 1`)
	runner := NewRunner(binary, 10*time.Second, nil)

	result, err := runner.Run(context.Background(), speechParams(), "in.mp3", "out.opus")
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error not tagged as external tool failure: %v", err)
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatalf("codec failure misclassified as timeout: %v", err)
	}
	if !strings.Contains(result.Diagnostic, "Invalid data found") {
		t.Fatalf("diagnostic = %q", result.Diagnostic)
	}
}

func TestRunTimeout(t *testing.T) {
	binary := fakeEncoder(t, `sleep 10`)
	runner := NewRunner(binary, 300*time.Millisecond, nil)

	start := time.Now()
	result, err := runner.Run(context.Background(), speechParams(), "in.mp3", "out.opus")
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error not tagged as timeout: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("result missing timeout flag")
	}
	if !strings.Contains(result.Diagnostic, "timeout of 0 seconds exceeded") {
		t.Fatalf("diagnostic = %q", result.Diagnostic)
	}
	if elapsed := time.Since(start); elapsed > 6*time.Second {
		t.Fatalf("runner did not kill the process promptly: %s", elapsed)
	}
}

func TestRunMissingBinary(t *testing.T) {
	runner := NewRunner(filepath.Join(t.TempDir(), "no-such-ffmpeg"), time.Second, nil)
	result, err := runner.Run(context.Background(), speechParams(), "in.mp3", "out.opus")
	if err == nil {
		t.Fatal("expected launch failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("launch failure not tagged: %v", err)
	}
	if result.Diagnostic == "" {
		t.Fatal("expected diagnostic for launch failure")
	}
}

func TestBoundedBufferTruncates(t *testing.T) {
	buf := newBoundedBuffer(8)
	if _, err := buf.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "01234567") {
		t.Fatalf("buffer = %q", got)
	}
	if !strings.Contains(got, "8 bytes of output truncated") {
		t.Fatalf("missing truncation note: %q", got)
	}
}
