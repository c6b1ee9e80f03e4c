package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"opuspress/internal/config"
	"opuspress/internal/encode"
	"opuspress/internal/fetch"
	"opuspress/internal/ledger"
	"opuspress/internal/opus"
	"opuspress/internal/services"
	"opuspress/internal/session"
)

type fakeProber struct {
	seconds float64
	known   bool
}

func (p fakeProber) Duration(context.Context, string) (float64, bool) {
	return p.seconds, p.known
}

type fakeRunner struct {
	mu          sync.Mutex
	calls       int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	output      []byte
	err         error
	result      encode.Result
}

func (r *fakeRunner) Run(ctx context.Context, params opus.EncodeParameters, inputPath, outputPath string) (encode.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	current := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		max := r.maxInFlight.Load()
		if current <= max || r.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return r.result, r.err
	}
	if r.output != nil {
		if err := os.WriteFile(outputPath, r.output, 0o644); err != nil {
			return encode.Result{}, err
		}
	}
	return r.result, nil
}

func (r *fakeRunner) Timeout() time.Duration { return time.Minute }

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingReporter struct {
	mu         sync.Mutex
	statuses   []Status
	delivered  string
	deliverErr error
	dropped    bool
	// dirExisted notes whether the artifact's directory was alive at
	// delivery time.
	dirExisted bool
}

func (r *recordingReporter) Announce(_ context.Context, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
}

func (r *recordingReporter) UpdateStatus(_ context.Context, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
}

func (r *recordingReporter) DeliverArtifact(_ context.Context, _ Job, artifactPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deliverErr != nil {
		return r.deliverErr
	}
	r.delivered = artifactPath
	if _, err := os.Stat(artifactPath); err == nil {
		r.dirExisted = true
	}
	return nil
}

func (r *recordingReporter) DropStatus(_ context.Context, _ Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = true
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (m *memoryRecorder) Record(_ context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryRecorder) last(t *testing.T) ledger.Entry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		t.Fatal("no ledger entries recorded")
	}
	return m.entries[len(m.entries)-1]
}

type testHarness struct {
	pipeline *Pipeline
	sessions *session.Store
	recorder *memoryRecorder
	staging  string
}

func newHarness(t *testing.T, runner Runner, prober Prober) *testHarness {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Encoding.MaxConcurrent = 2

	sessions := session.NewStore(session.Settings{Tier: opus.TierMid, SpeechOptimized: true})
	recorder := &memoryRecorder{}
	p := New(&cfg, sessions, nil, recorder, nil)
	if runner != nil {
		p.WithRunner(runner)
	}
	if prober != nil {
		p.WithProber(prober)
	}
	return &testHarness{pipeline: p, sessions: sessions, recorder: recorder, staging: cfg.Paths.StagingDir}
}

func (h *testHarness) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.staging)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("working directories leaked: %v", entries)
	}
}

func sourceFile(t *testing.T, name string, size int) fetch.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return fetch.NewFileSource(path, 0)
}

func TestProcessSuccess(t *testing.T) {
	runner := &fakeRunner{output: make([]byte, 150)}
	h := newHarness(t, runner, fakeProber{seconds: 75, known: true})
	reporter := &recordingReporter{}

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID:   "alice",
		Source:   sourceFile(t, "note.mp3", 1000),
		Reporter: reporter,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if job.InputBytes != 1000 || job.OutputBytes != 150 {
		t.Fatalf("sizes = %d/%d", job.InputBytes, job.OutputBytes)
	}
	if job.CompressionRatio != 85.0 {
		t.Fatalf("ratio = %v", job.CompressionRatio)
	}
	if !job.DurationKnown || job.DurationSeconds != 75 {
		t.Fatalf("duration = %v known=%t", job.DurationSeconds, job.DurationKnown)
	}

	want := []Status{StatusQueued, StatusFetching, StatusProbing, StatusEncoding, StatusReporting, StatusCompleted}
	if len(reporter.statuses) != len(want) {
		t.Fatalf("status transitions = %v", reporter.statuses)
	}
	for i, status := range want {
		if reporter.statuses[i] != status {
			t.Fatalf("transition %d = %s, want %s", i, reporter.statuses[i], status)
		}
	}
	if !reporter.dirExisted {
		t.Fatal("artifact was delivered after its directory was removed")
	}
	if filepath.Base(reporter.delivered) != "note.opus" {
		t.Fatalf("artifact name = %q", reporter.delivered)
	}
	if !reporter.dropped {
		t.Fatal("status indicator not dropped after delivery")
	}

	entry := h.recorder.last(t)
	if entry.Outcome != ledger.OutcomeCompleted || entry.JobID != job.ID {
		t.Fatalf("ledger entry = %+v", entry)
	}
	h.assertStagingEmpty(t)
}

func TestProcessValidationFailureSkipsEncode(t *testing.T) {
	runner := &fakeRunner{output: []byte("x")}
	h := newHarness(t, runner, fakeProber{})

	path := filepath.Join(t.TempDir(), "big.wav")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: fetch.NewFileSource(path, 1024),
	})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if job.FailureKind != "validation" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	if runner.callCount() != 0 {
		t.Fatal("encoder invoked despite validation failure")
	}
	h.assertStagingEmpty(t)
}

func TestProcessRejectsEmptySource(t *testing.T) {
	runner := &fakeRunner{output: []byte("x")}
	h := newHarness(t, runner, fakeProber{})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "empty.mp3", 0),
	})
	if err == nil {
		t.Fatal("expected validation failure for empty source")
	}
	if job.FailureKind != "validation" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	if runner.callCount() != 0 {
		t.Fatal("encoder invoked for an empty source")
	}
	h.assertStagingEmpty(t)
}

func TestProcessMissingSourceIsValidation(t *testing.T) {
	runner := &fakeRunner{output: []byte("x")}
	h := newHarness(t, runner, fakeProber{})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: fetch.NewFileSource(filepath.Join(t.TempDir(), "absent.mp3"), 0),
	})
	if err == nil {
		t.Fatal("expected validation failure for a missing source")
	}
	if job.FailureKind != "validation" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	if runner.callCount() != 0 {
		t.Fatal("encoder invoked for a missing source")
	}
	h.assertStagingEmpty(t)
}

func TestProcessEncodeFailureTruncatesDiagnostic(t *testing.T) {
	longDiag := strings.Repeat("e", 500)
	runner := &fakeRunner{
		err:    services.Wrap(services.ErrExternalTool, "encoding", "run ffmpeg", longDiag, errors.New("exit status 1")),
		result: encode.Result{Diagnostic: longDiag},
	}
	h := newHarness(t, runner, fakeProber{seconds: 10, known: true})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if job.FailureKind != "encode" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	if len([]rune(job.Diagnostic)) > 203 {
		t.Fatalf("diagnostic not truncated: %d runes", len([]rune(job.Diagnostic)))
	}
	if !strings.HasSuffix(job.Diagnostic, "...") {
		t.Fatalf("diagnostic = %q", job.Diagnostic)
	}
	entry := h.recorder.last(t)
	if entry.Outcome != ledger.OutcomeFailed || entry.FailureKind != "encode" {
		t.Fatalf("ledger entry = %+v", entry)
	}
	h.assertStagingEmpty(t)
}

func TestProcessTimeoutClassified(t *testing.T) {
	runner := &fakeRunner{
		err: services.Wrap(services.ErrTimeout, "encoding", "run ffmpeg",
			"encoding timeout of 60 seconds exceeded", context.DeadlineExceeded),
		result: encode.Result{TimedOut: true},
	}
	h := newHarness(t, runner, fakeProber{})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if job.FailureKind != "timeout" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	if !strings.Contains(job.Diagnostic, "timeout of 60 seconds exceeded") {
		t.Fatalf("diagnostic = %q", job.Diagnostic)
	}
	h.assertStagingEmpty(t)
}

func TestProcessProbeFailureDegrades(t *testing.T) {
	runner := &fakeRunner{output: []byte("opus")}
	h := newHarness(t, runner, fakeProber{known: false})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if err != nil {
		t.Fatalf("probe failure must not fail the job: %v", err)
	}
	if job.DurationKnown {
		t.Fatal("duration should be unknown")
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestProcessEmptyOutputFails(t *testing.T) {
	runner := &fakeRunner{output: nil}
	h := newHarness(t, runner, fakeProber{})

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if err == nil {
		t.Fatal("expected failure for missing output")
	}
	if job.FailureKind != "encode" {
		t.Fatalf("failure kind = %q", job.FailureKind)
	}
	h.assertStagingEmpty(t)
}

func TestProcessDeliveryFailureCleansUp(t *testing.T) {
	runner := &fakeRunner{output: []byte("opus")}
	h := newHarness(t, runner, fakeProber{})
	reporter := &recordingReporter{deliverErr: errors.New("caller disconnected")}

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID:   "alice",
		Source:   sourceFile(t, "note.mp3", 100),
		Reporter: reporter,
	})
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	if job.Status != StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	h.assertStagingEmpty(t)
}

func TestProcessUsesSessionSettings(t *testing.T) {
	runner := &fakeRunner{output: []byte("opus")}
	h := newHarness(t, runner, fakeProber{})
	h.sessions.SetTier("alice", opus.TierHigh)
	h.sessions.SetSpeechOptimized("alice", false)

	job, err := h.pipeline.Process(context.Background(), Request{
		UserID: "alice",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if job.Tier != opus.TierHigh || job.SpeechOptimized {
		t.Fatalf("job settings = %s/%t", job.Tier, job.SpeechOptimized)
	}
}

func TestProcessBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{output: []byte("opus"), delay: 50 * time.Millisecond}
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Encoding.MaxConcurrent = 1

	sessions := session.NewStore(session.Settings{Tier: opus.TierMid, SpeechOptimized: true})
	p := New(&cfg, sessions, nil, nil, nil).WithRunner(runner).WithProber(fakeProber{})

	sources := make([]fetch.Source, 4)
	for i := range sources {
		sources[i] = sourceFile(t, "note.mp3", 100)
	}
	var wg sync.WaitGroup
	for _, source := range sources {
		source := source
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Process(context.Background(), Request{UserID: "alice", Source: source})
		}()
	}
	wg.Wait()
	if peak := runner.maxInFlight.Load(); peak > 1 {
		t.Fatalf("observed %d concurrent encodes with limit 1", peak)
	}
	if runner.callCount() != 4 {
		t.Fatalf("expected 4 encodes, got %d", runner.callCount())
	}
}

func TestProcessCancelledBeforeSlot(t *testing.T) {
	runner := &fakeRunner{output: []byte("opus"), delay: 200 * time.Millisecond}
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Encoding.MaxConcurrent = 1

	sessions := session.NewStore(session.Settings{Tier: opus.TierMid, SpeechOptimized: true})
	p := New(&cfg, sessions, nil, nil, nil).WithRunner(runner).WithProber(fakeProber{})

	// Occupy the only slot.
	occupant := sourceFile(t, "long.mp3", 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Process(context.Background(), Request{UserID: "alice", Source: occupant})
	}()
	defer func() { <-done }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	job, err := p.Process(ctx, Request{
		UserID: "bob",
		Source: sourceFile(t, "note.mp3", 100),
	})
	if err == nil {
		t.Fatal("expected cancellation while waiting for a slot")
	}
	if job.Status != StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"note.mp3", "note.opus"},
		{"a/b.wav", "a-b.opus"},
		{"", "output.opus"},
		{".hidden", "hidden.opus"},
	}
	for _, tc := range cases {
		if got := outputName(tc.in); got != tc.want {
			t.Fatalf("outputName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
