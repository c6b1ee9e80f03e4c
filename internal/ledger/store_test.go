package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completedEntry(jobID string) Entry {
	return Entry{
		JobID:            jobID,
		UserID:           "alice",
		SourceName:       "note.mp3",
		Tier:             "mid",
		SpeechOptimized:  true,
		Outcome:          OutcomeCompleted,
		InputBytes:       1_000_000,
		OutputBytes:      150_000,
		DurationSeconds:  75,
		CompressionRatio: 85.0,
		Elapsed:          3200 * time.Millisecond,
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, completedEntry("job-1")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if got.Outcome != OutcomeCompleted || !got.SpeechOptimized || got.CompressionRatio != 85.0 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Elapsed != 3200*time.Millisecond {
		t.Fatalf("elapsed = %s", got.Elapsed)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not populated")
	}
}

func TestGetMissingJob(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetByJobID(context.Background(), "absent"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := store.Record(ctx, completedEntry(id)); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].JobID != "job-3" || entries[1].JobID != "job-2" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestListByUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	alice := completedEntry("job-a")
	bob := completedEntry("job-b")
	bob.UserID = "bob"
	for _, entry := range []Entry{alice, bob} {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := store.ListByUser(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != "job-b" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSummarize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, completedEntry("job-ok")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	failed := completedEntry("job-bad")
	failed.Outcome = OutcomeFailed
	failed.FailureKind = "timeout"
	failed.Diagnostic = "encoding timeout of 1800 seconds exceeded"
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed entry: %v", err)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Completed != 1 || summary.Failed != 1 || summary.Total() != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestDuplicateJobIDRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Record(ctx, completedEntry("job-1")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, completedEntry("job-1")); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}
