package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store"
)

func TestCheckFileStateNewThenUnchangedThenUpdated(t *testing.T) {
	ctx := context.Background()
	s := New()

	state, err := s.CheckFileState(ctx, "t1", "repo", "main", "a.go", "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != model.FileNew || state.NewGeneration != 1 {
		t.Fatalf("expected new file at generation 1, got %+v", state)
	}

	if _, err := s.RecordFileIndexing(ctx, "t1", "repo", "main", store.FileMetadata{
		Path: "a.go", ContentHash: "hash-1", Generation: 1,
	}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	state, err = s.CheckFileState(ctx, "t1", "repo", "main", "a.go", "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != model.FileUnchanged || state.OldGeneration != 1 {
		t.Fatalf("expected unchanged at generation 1, got %+v", state)
	}

	state, err = s.CheckFileState(ctx, "t1", "repo", "main", "a.go", "hash-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != model.FileUpdated || state.OldGeneration != 1 || state.NewGeneration != 2 {
		t.Fatalf("expected updated 1->2, got %+v", state)
	}
}

func TestReplaceFileChunksDeletesOnlyStaleGenerations(t *testing.T) {
	ctx := context.Background()
	s := New()

	chunks := []model.ChunkMetadata{
		{ChunkID: "c1", FilePath: "a.go", Generation: 1},
		{ChunkID: "c2", FilePath: "a.go", Generation: 1},
	}
	if err := s.InsertChunks(ctx, "t1", "repo", "main", chunks); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	deleted, err := s.ReplaceFileChunks(ctx, "t1", "repo", "main", "a.go", 2)
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected both generation-1 chunks deleted, got %d", len(deleted))
	}

	remaining, err := s.GetFileChunks(ctx, "t1", "repo", "main", "a.go")
	if err != nil {
		t.Fatalf("get chunks failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no chunks left after replace, got %d", len(remaining))
	}
}

func TestDequeueFileUniqueUnderConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	s := New()

	job, err := s.CreateIndexingJob(ctx, "ns", "t1", "repo", "main", model.CommitContext{})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	const fileCount = 50
	for i := 0; i < fileCount; i++ {
		path := "file" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		if err := s.EnqueueFile(ctx, job.JobID, "t1", "repo", "main", path, "content", "hash"); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	const workerCount = 8
	seen := make(map[string]int)
	var seenMu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				df, err := s.DequeueFile(ctx)
				if err != nil {
					t.Errorf("dequeue failed: %v", err)
					return
				}
				if df == nil {
					return
				}
				seenMu.Lock()
				seen[df.FilePath]++
				seenMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != fileCount {
		t.Fatalf("expected %d distinct files claimed, got %d", fileCount, len(seen))
	}
	for path, count := range seen {
		if count != 1 {
			t.Fatalf("file %q claimed %d times, want exactly 1", path, count)
		}
	}
}

func TestJobCompletesWhenQueueDrains(t *testing.T) {
	ctx := context.Background()
	s := New()

	job, err := s.CreateIndexingJob(ctx, "ns", "t1", "repo", "main", model.CommitContext{})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if err := s.EnqueueFile(ctx, job.JobID, "t1", "repo", "main", "only.go", "c", "h"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	complete, err := s.CheckJobComplete(ctx, job.JobID)
	if err != nil {
		t.Fatalf("check complete failed: %v", err)
	}
	if complete {
		t.Fatal("expected job incomplete while a file is still queued")
	}

	df, err := s.DequeueFile(ctx)
	if err != nil || df == nil {
		t.Fatalf("expected to dequeue the only file, got df=%v err=%v", df, err)
	}
	if err := s.MarkFileCompleted(ctx, job.JobID, df.FilePath); err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}

	complete, err = s.CheckJobComplete(ctx, job.JobID)
	if err != nil {
		t.Fatalf("check complete failed: %v", err)
	}
	if !complete {
		t.Fatal("expected job complete after its only file finished")
	}
}

func TestHasRunningJobsReflectsStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	has, err := s.HasRunningJobs(ctx, "t1", "repo", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Fatal("expected no running jobs initially")
	}

	job, err := s.CreateIndexingJob(ctx, "ns", "t1", "repo", "main", model.CommitContext{})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	has, err = s.HasRunningJobs(ctx, "t1", "repo", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatal("expected a pending job to count as running")
	}

	if err := s.CompleteJob(ctx, job.JobID, model.JobCompleted, ""); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	has, err = s.HasRunningJobs(ctx, "t1", "repo", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Fatal("expected no running jobs after completion")
	}
}
