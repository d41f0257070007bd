// Package worker drains the durable file queue (internal/store) and
// advances indexing jobs to completion: parse+chunk, embed, replace
// vector-store and metadata state atomically, mark the queue row, and
// close the job once its queue depth reaches zero.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/chunker"
	"github.com/codetriever/ingestcore/internal/metrics"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/internal/vectordb"
)

// VectorStore is the subset of *vectordb.Client the worker needs,
// narrowed so tests can supply a stub instead of a live Qdrant.
type VectorStore interface {
	DeleteChunks(ctx context.Context, chunkIDs []string) error
	StoreChunks(ctx context.Context, points []vectordb.ChunkPoint) error
}

// Embedder is the subset of *embedpool.Pool the worker needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config parameterizes a Worker.
type Config struct {
	Repo            store.Repository
	Vectors         VectorStore
	Embeddings      Embedder
	Counter         chunker.Counter
	Budget          chunker.TokenBudget
	SplitLargeUnits bool
	// IdlePoll is how long the worker sleeps after an empty dequeue
	// before trying again.
	IdlePoll time.Duration
	// Metrics is optional; a nil Collector disables recording.
	Metrics *metrics.Collector
}

// Worker drains the queue until its context is cancelled. Multiple
// Workers may run concurrently against the same store; dequeue
// uniqueness is the store's responsibility (SKIP LOCKED in Postgres, a
// single mutex in memstore).
type Worker struct {
	cfg Config
}

// New builds a Worker over cfg. A zero IdlePoll defaults to 200ms.
func New(cfg Config) *Worker {
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 200 * time.Millisecond
	}
	return &Worker{cfg: cfg}
}

// Run loops until ctx is done, processing one file per iteration and
// sleeping IdlePoll whenever the queue is empty.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.runOnce(ctx)
		if err != nil {
			log.Printf("worker: iteration error: %v", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdlePoll):
			}
		}
	}
}

// runOnce dequeues and fully processes at most one file. It returns
// processed=false when the queue was empty, which is not an error.
func (w *Worker) runOnce(ctx context.Context) (processed bool, err error) {
	file, err := w.cfg.Repo.DequeueFile(ctx)
	if err != nil {
		return false, err
	}
	if file == nil {
		return false, nil
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: panic processing %s/%s: %v", file.JobID, file.FilePath, r)
			failErr := apperrors.IndexingFailed(file.FilePath, file.RepositoryID, fmt.Errorf("panic: %v", r))
			_ = w.failFile(ctx, file, failErr.Error())
			w.cfg.Metrics.ObserveFileProcessed("failed", time.Since(started))
		}
	}()

	if depth, depthErr := w.cfg.Repo.GetQueueDepth(ctx, file.JobID); depthErr == nil {
		w.cfg.Metrics.ObserveQueueDepth(file.JobID, depth)
	}

	outcome, procErr := w.processFile(ctx, file)
	if procErr != nil {
		w.cfg.Metrics.ObserveFileProcessed("failed", time.Since(started))
		return true, w.failFile(ctx, file, procErr.Error())
	}
	w.cfg.Metrics.ObserveFileProcessed(outcome, time.Since(started))
	return true, nil
}

// processFile implements the per-iteration loop's steps 2 through 8
// for one already-dequeued file. It returns the outcome string used
// for the file-processed metric ("completed" or "cancelled") alongside
// any error.
func (w *Worker) processFile(ctx context.Context, file *store.DequeuedFile) (string, error) {
	job, err := w.cfg.Repo.GetIndexingJob(ctx, file.JobID)
	if err != nil {
		return "", err
	}

	if job != nil && job.Status == model.JobCancelled {
		if err := w.cfg.Repo.MarkFileCancelled(ctx, file.JobID, file.FilePath); err != nil {
			return "", err
		}
		if err := w.advanceJob(ctx, file.JobID, 1, 0); err != nil {
			return "", err
		}
		return "cancelled", nil
	}

	state, err := w.cfg.Repo.CheckFileState(ctx, file.TenantID, file.RepositoryID, file.Branch, file.FilePath, file.ContentHash)
	if err != nil {
		return "", err
	}

	if state.Kind == model.FileUnchanged {
		if err := w.cfg.Repo.MarkFileCompleted(ctx, file.JobID, file.FilePath); err != nil {
			return "", err
		}
		return "completed", w.advanceJob(ctx, file.JobID, 1, 0)
	}

	language := chunker.DetectLanguage(file.FilePath)
	chunks := chunker.Chunk(file.FilePath, file.FileContent, w.cfg.Counter, chunker.Options{
		Budget:          w.cfg.Budget,
		Language:        language,
		SplitLargeUnits: w.cfg.SplitLargeUnits,
	})

	if err := w.embedChunks(ctx, chunks); err != nil {
		return "", err
	}

	if err := w.replaceChunks(ctx, file, state.NewGeneration, chunks); err != nil {
		return "", err
	}

	meta := store.FileMetadata{
		Path:        file.FilePath,
		ContentHash: file.ContentHash,
		Generation:  state.NewGeneration,
		Content:     file.FileContent,
		SizeBytes:   int64(len(file.FileContent)),
		Encoding:    "utf-8",
	}
	if job != nil {
		meta.CommitSHA = job.CommitSHA
		meta.CommitMessage = job.CommitMessage
		meta.CommitDate = job.CommitDate
		meta.Author = job.Author
	}
	if _, err := w.cfg.Repo.RecordFileIndexing(ctx, file.TenantID, file.RepositoryID, file.Branch, meta); err != nil {
		return "", err
	}

	if err := w.cfg.Repo.MarkFileCompleted(ctx, file.JobID, file.FilePath); err != nil {
		return "", err
	}
	if err := w.advanceJob(ctx, file.JobID, 1, len(chunks)); err != nil {
		return "", err
	}
	return "completed", nil
}

// embedChunks embeds every chunk's content in one pool submission and
// attaches the resulting vectors in place.
func (w *Worker) embedChunks(ctx context.Context, chunks []model.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	started := time.Now()
	vectors, err := w.cfg.Embeddings.Embed(ctx, texts)
	w.cfg.Metrics.ObserveEmbeddingBatch(time.Since(started))
	if err != nil {
		return apperrors.EmbeddingFailed(len(texts), "", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

// replaceChunks implements the atomic replacement protocol for one
// file: compute deleted IDs from the metadata store, delete those
// points from the vector store, upsert the new generation's points,
// then write the new chunk metadata rows. Ordering is generation bump
// (implicit in newGeneration) -> chunk delete -> vector delete ->
// vector upsert -> chunk insert.
func (w *Worker) replaceChunks(ctx context.Context, file *store.DequeuedFile, newGeneration int64, chunks []model.CodeChunk) error {
	deletedIDs, err := w.cfg.Repo.ReplaceFileChunks(ctx, file.TenantID, file.RepositoryID, file.Branch, file.FilePath, newGeneration)
	if err != nil {
		return err
	}
	if err := w.cfg.Vectors.DeleteChunks(ctx, deletedIDs); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	points := make([]vectordb.ChunkPoint, len(chunks))
	rows := make([]model.ChunkMetadata, len(chunks))
	for i, c := range chunks {
		id := model.ChunkID(file.RepositoryID, file.Branch, file.FilePath, newGeneration, c.ByteStart, c.ByteEnd).String()
		points[i] = vectordb.ChunkPoint{
			ChunkID:      id,
			Embedding:    c.Embedding,
			TenantID:     file.TenantID,
			RepositoryID: file.RepositoryID,
			Branch:       file.Branch,
			FilePath:     file.FilePath,
			Generation:   newGeneration,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			ByteStart:    c.ByteStart,
			ByteEnd:      c.ByteEnd,
			Kind:         c.Kind,
			Name:         c.Name,
			Language:     c.Language,
			Content:      c.Content,
		}
		rows[i] = model.ChunkMetadata{
			ChunkID:      id,
			TenantID:     file.TenantID,
			RepositoryID: file.RepositoryID,
			Branch:       file.Branch,
			FilePath:     file.FilePath,
			Generation:   newGeneration,
			ChunkIndex:   i,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			ByteStart:    c.ByteStart,
			ByteEnd:      c.ByteEnd,
			Kind:         c.Kind,
			Name:         c.Name,
			Language:     c.Language,
		}
	}

	if err := w.cfg.Vectors.StoreChunks(ctx, points); err != nil {
		return err
	}
	return w.cfg.Repo.InsertChunks(ctx, file.TenantID, file.RepositoryID, file.Branch, rows)
}

// advanceJob bumps job progress and completes the job once its queue
// has drained, per steps 7-8 of the per-iteration loop. A job already
// cancelled is left cancelled rather than flipped to completed just
// because its remaining rows finished draining.
func (w *Worker) advanceJob(ctx context.Context, jobID string, filesDelta, chunksDelta int) error {
	if err := w.cfg.Repo.IncrementJobProgress(ctx, jobID, filesDelta, chunksDelta); err != nil {
		return err
	}
	done, err := w.cfg.Repo.CheckJobComplete(ctx, jobID)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	job, err := w.cfg.Repo.GetIndexingJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job != nil && job.Status == model.JobCancelled {
		return nil
	}

	if err := w.cfg.Repo.CompleteJob(ctx, jobID, model.JobCompleted, ""); err != nil {
		return err
	}
	if job != nil {
		w.cfg.Metrics.ObserveJobDuration(time.Since(job.StartedAt))
	}
	return nil
}

// failFile marks the queue row failed, bumps the job's files counter
// (chunks_delta stays zero since no chunks were written), and checks
// whether the job has drained.
func (w *Worker) failFile(ctx context.Context, file *store.DequeuedFile, errMsg string) error {
	if err := w.cfg.Repo.MarkFileFailed(ctx, file.JobID, file.FilePath, errMsg); err != nil {
		return err
	}
	return w.advanceJob(ctx, file.JobID, 1, 0)
}
