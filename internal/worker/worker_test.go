package worker

import (
	"context"
	"testing"

	"github.com/codetriever/ingestcore/internal/chunker"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/internal/store/memstore"
	"github.com/codetriever/ingestcore/internal/vectordb"
)

type stubCounter struct{}

func (stubCounter) Count(text string) int { return len(text) / 4 }

type fakeVectors struct {
	stored  []vectordb.ChunkPoint
	deleted []string
}

func (f *fakeVectors) StoreChunks(ctx context.Context, points []vectordb.ChunkPoint) error {
	f.stored = append(f.stored, points...)
	return nil
}

func (f *fakeVectors) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}

type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newTestWorker(repo store.Repository, vectors *fakeVectors, embedder *fakeEmbedder) *Worker {
	return New(Config{
		Repo:       repo,
		Vectors:    vectors,
		Embeddings: embedder,
		Counter:    stubCounter{},
		Budget:     chunker.NewTokenBudget(200, 0),
	})
}

func submitOneFileJob(t *testing.T, repo *memstore.Store, content string) model.IndexingJob {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.EnsureProjectBranch(ctx, model.CommitContext{}, "t1", "repo", "main"); err != nil {
		t.Fatalf("EnsureProjectBranch: %v", err)
	}
	job, err := repo.CreateIndexingJob(ctx, "ns", "t1", "repo", "main", model.CommitContext{})
	if err != nil {
		t.Fatalf("CreateIndexingJob: %v", err)
	}
	hash := model.ContentHash([]byte(content))
	if err := repo.EnqueueFile(ctx, job.JobID, "t1", "repo", "main", "a.go", content, hash); err != nil {
		t.Fatalf("EnqueueFile: %v", err)
	}
	return job
}

func TestRunOnceIndexesNewFile(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	job := submitOneFileJob(t, repo, "package a\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")

	vectors := &fakeVectors{}
	w := newTestWorker(repo, vectors, &fakeEmbedder{})

	processed, err := w.runOnce(ctx)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if !processed {
		t.Fatal("expected the single queued file to be processed")
	}

	depth, _ := repo.GetQueueDepth(ctx, job.JobID)
	if depth != 0 {
		t.Fatalf("expected queue depth 0 after processing, got %d", depth)
	}

	updated, err := repo.GetIndexingJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetIndexingJob: %v", err)
	}
	if updated.Status != model.JobCompleted {
		t.Fatalf("expected job to complete after draining, got %s", updated.Status)
	}
	if updated.FilesProcessed != 1 {
		t.Fatalf("expected FilesProcessed=1, got %d", updated.FilesProcessed)
	}
	if len(vectors.stored) == 0 {
		t.Fatal("expected at least one chunk to be stored in the vector store")
	}

	files, err := repo.GetIndexedFiles(ctx, "t1", "repo", "main")
	if err != nil {
		t.Fatalf("GetIndexedFiles: %v", err)
	}
	if len(files) != 1 || files[0].Generation != 1 {
		t.Fatalf("expected one indexed file at generation 1, got %+v", files)
	}
}

func TestRunOnceSkipsUnchangedFileWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	content := "package a\n"
	submitOneFileJob(t, repo, content)

	// First pass indexes the file at generation 1.
	vectors := &fakeVectors{}
	w := newTestWorker(repo, vectors, &fakeEmbedder{})
	if _, err := w.runOnce(ctx); err != nil {
		t.Fatalf("first runOnce: %v", err)
	}

	// Re-submit the same content under a second job; check_file_state
	// should report Unchanged and skip chunk/embed work entirely.
	job2, err := repo.CreateIndexingJob(ctx, "ns", "t1", "repo", "main", model.CommitContext{})
	if err != nil {
		t.Fatalf("CreateIndexingJob: %v", err)
	}
	hash := model.ContentHash([]byte(content))
	if err := repo.EnqueueFile(ctx, job2.JobID, "t1", "repo", "main", "a.go", content, hash); err != nil {
		t.Fatalf("EnqueueFile: %v", err)
	}

	embedder := &fakeEmbedder{fail: true}
	w2 := newTestWorker(repo, vectors, embedder)
	processed, err := w2.runOnce(ctx)
	if err != nil {
		t.Fatalf("second runOnce: %v", err)
	}
	if !processed {
		t.Fatal("expected the unchanged file to still be dequeued and marked complete")
	}
	if embedder.calls != 0 {
		t.Fatalf("expected no embedding calls for unchanged content, got %d", embedder.calls)
	}
}

func TestRunOnceMarksFileFailedOnEmbeddingError(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	job := submitOneFileJob(t, repo, "package a\n\nfunc F() {}\n")

	vectors := &fakeVectors{}
	w := newTestWorker(repo, vectors, &fakeEmbedder{fail: true})

	processed, err := w.runOnce(ctx)
	if err != nil {
		t.Fatalf("runOnce should report the job-level error via job state, not return it: %v", err)
	}
	if !processed {
		t.Fatal("expected the file to be processed (and fail) rather than left in the queue")
	}

	updated, err := repo.GetIndexingJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetIndexingJob: %v", err)
	}
	if updated.Status != model.JobCompleted {
		t.Fatalf("expected job to reach a terminal completed status with partial results, got %s", updated.Status)
	}
	if updated.FilesProcessed != 1 {
		t.Fatalf("expected FilesProcessed=1 even on failure, got %d", updated.FilesProcessed)
	}
	if updated.ChunksCreated != 0 {
		t.Fatalf("expected ChunksCreated=0 on failure, got %d", updated.ChunksCreated)
	}
}

func TestRunOnceSkipsFileForCancelledJobWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	job := submitOneFileJob(t, repo, "package a\n\nfunc F() {}\n")

	if err := repo.CancelJob(ctx, job.JobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	embedder := &fakeEmbedder{fail: true}
	vectors := &fakeVectors{}
	w := newTestWorker(repo, vectors, embedder)

	processed, err := w.runOnce(ctx)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if !processed {
		t.Fatal("expected the queued file for a cancelled job to still be drained")
	}
	if len(vectors.stored) != 0 {
		t.Fatal("expected no chunks to be embedded or stored for a cancelled job")
	}

	updated, err := repo.GetIndexingJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetIndexingJob: %v", err)
	}
	if updated.Status != model.JobCancelled {
		t.Fatalf("expected job to remain cancelled after draining, got %s", updated.Status)
	}
}

func TestRunOnceReturnsNotProcessedWhenQueueEmpty(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	w := newTestWorker(repo, &fakeVectors{}, &fakeEmbedder{})

	processed, err := w.runOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error on empty queue: %v", err)
	}
	if processed {
		t.Fatal("expected processed=false when the queue is empty")
	}
}
