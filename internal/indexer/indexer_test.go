package indexer

import (
	"context"
	"testing"

	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store/memstore"
)

func TestStartJobEnqueuesEveryFile(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	idx := New(repo)

	job, err := idx.StartJob(ctx, "t1", "repo", "main", "ns-1", model.CommitContext{}, []model.SubmittedFile{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b"},
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	if job.FilesTotal != 2 {
		t.Fatalf("expected FilesTotal=2, got %d", job.FilesTotal)
	}

	depth, err := repo.GetQueueDepth(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetQueueDepth failed: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected queue depth 2, got %d", depth)
	}
}

func TestStartJobRequiresTenantRepositoryBranch(t *testing.T) {
	ctx := context.Background()
	idx := New(memstore.New())

	if _, err := idx.StartJob(ctx, "", "repo", "main", "ns", model.CommitContext{}, nil); err == nil {
		t.Fatal("expected a validation error with an empty tenant id")
	}
}

func TestJobStatusReturnsNilForUnknownJob(t *testing.T) {
	ctx := context.Background()
	idx := New(memstore.New())

	job, err := idx.JobStatus(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for an unknown job, got %+v", job)
	}
}

func TestIndexStatusReflectsRunningJob(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	idx := New(repo)

	if _, err := idx.StartJob(ctx, "t1", "repo", "main", "ns", model.CommitContext{}, []model.SubmittedFile{
		{Path: "a.go", Content: "x"},
	}); err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}

	running, _, err := idx.IndexStatus(ctx, "t1", "repo", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !running {
		t.Fatal("expected a freshly started job to count as running")
	}
}
