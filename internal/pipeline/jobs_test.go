package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("test-1", Request{CIK: "320193"})
	if job.Status != StatusQueued {
		t.Fatalf("expected new job queued, got %q", job.Status)
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusFetching, "submissions"},
		{StatusIndexing, "indexing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("0000320193-23-000106: status 503")
	job.AddError("0000320193-22-000108: status 404")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "0000320193-23-000106: status 503" {
		t.Errorf("expected first error %q, got %q", "0000320193-23-000106: status 503", snap.Progress.Errors[0])
	}
}

func TestJob_RecordFiling(t *testing.T) {
	job := NewJob("rec-test", Request{CIK: "320193"})
	job.SetFilingsTotal(3)
	job.RecordFiling(FilingReport{Accession: "a", ChunksIndexed: 40, ImagesIndexed: 2, TablesStored: 5})
	job.RecordFiling(FilingReport{Accession: "b", Skipped: true})
	job.RecordFiling(FilingReport{Accession: "c", Error: "status 404"})

	p := job.Snapshot().Progress
	if p.FilingsTotal != 3 || p.FilingsProcessed != 3 {
		t.Errorf("expected 3 of 3 processed, got %d of %d", p.FilingsProcessed, p.FilingsTotal)
	}
	if p.FilingsSkipped != 1 || p.FilingsFailed != 1 {
		t.Errorf("expected 1 skipped and 1 failed, got %d and %d", p.FilingsSkipped, p.FilingsFailed)
	}
	if p.ChunksIndexed != 40 || p.ImagesIndexed != 2 || p.TablesStored != 5 {
		t.Errorf("unexpected totals %+v", p)
	}
	if len(p.Filings) != 3 || p.Filings[2].Accession != "c" {
		t.Errorf("expected filing reports in order, got %+v", p.Filings)
	}
}

func TestJob_SnapshotIsCopy(t *testing.T) {
	job := NewJob("copy-test", Request{CIK: "320193"})
	job.RecordFiling(FilingReport{Accession: "a"})
	snap := job.Snapshot()
	job.RecordFiling(FilingReport{Accession: "b"})

	if len(snap.Progress.Filings) != 1 {
		t.Errorf("expected snapshot unaffected by later updates, got %d filings", len(snap.Progress.Filings))
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
