// Package memstore is an in-process Repository implementation used
// by tests. It implements the
// full store.Repository surface with a single mutex-protected,
// map-backed store: one RWMutex guards a handful of maps standing in
// for tables, with no persistence across process restarts.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store"
)

type fileKey struct {
	TenantID, RepositoryID, Branch, FilePath string
}

type branchKey struct {
	TenantID, RepositoryID, Branch string
}

// Store is a thread-safe, in-memory store.Repository. Zero value is
// not usable; construct with New.
type Store struct {
	mu sync.RWMutex

	tenants  map[string]model.Tenant
	branches map[branchKey]model.ProjectBranch
	files    map[fileKey]model.IndexedFile
	chunks   map[fileKey][]model.ChunkMetadata
	jobs     map[string]model.IndexingJob
	queue    []*model.QueuedFile
	nextID   int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		tenants:  make(map[string]model.Tenant),
		branches: make(map[branchKey]model.ProjectBranch),
		files:    make(map[fileKey]model.IndexedFile),
		chunks:   make(map[fileKey][]model.ChunkMetadata),
		jobs:     make(map[string]model.IndexingJob),
	}
}

func (s *Store) CreateTenant(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.tenants[id] = model.Tenant{ID: id, Name: name, CreatedAt: time.Now()}
	return id, nil
}

func (s *Store) EnsureProjectBranch(ctx context.Context, commit model.CommitContext, tenantID, repositoryID, branch string) (model.ProjectBranch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := branchKey{tenantID, repositoryID, branch}
	if existing, ok := s.branches[key]; ok {
		existing.LastIndexedAt = time.Now()
		s.branches[key] = existing
		return existing, nil
	}

	now := time.Now()
	pb := model.ProjectBranch{
		TenantID:      tenantID,
		RepositoryID:  repositoryID,
		Branch:        branch,
		RepositoryURL: commit.RepositoryURL,
		FirstSeenAt:   now,
		LastIndexedAt: now,
	}
	s.branches[key] = pb
	return pb, nil
}

func (s *Store) CheckFileState(ctx context.Context, tenantID, repositoryID, branch, filePath, contentHash string) (model.FileState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.files[fileKey{tenantID, repositoryID, branch, filePath}]
	if !ok {
		return model.FileState{Kind: model.FileNew, NewGeneration: 1}, nil
	}
	if existing.ContentHash == contentHash {
		return model.FileState{Kind: model.FileUnchanged, OldGeneration: existing.Generation, NewGeneration: existing.Generation}, nil
	}
	return model.FileState{
		Kind:          model.FileUpdated,
		OldGeneration: existing.Generation,
		NewGeneration: existing.Generation + 1,
	}, nil
}

func (s *Store) RecordFileIndexing(ctx context.Context, tenantID, repositoryID, branch string, meta store.FileMetadata) (model.IndexedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := model.IndexedFile{
		TenantID:      tenantID,
		RepositoryID:  repositoryID,
		Branch:        branch,
		FilePath:      meta.Path,
		ContentHash:   meta.ContentHash,
		Generation:    meta.Generation,
		CommitSHA:     meta.CommitSHA,
		CommitMessage: meta.CommitMessage,
		CommitDate:    meta.CommitDate,
		Author:        meta.Author,
		Content:       meta.Content,
		SizeBytes:     meta.SizeBytes,
		Encoding:      meta.Encoding,
		IndexedAt:     time.Now(),
	}
	s.files[fileKey{tenantID, repositoryID, branch, meta.Path}] = row
	return row, nil
}

func (s *Store) InsertChunks(ctx context.Context, tenantID, repositoryID, branch string, chunks []model.ChunkMetadata) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fileKey{tenantID, repositoryID, branch, chunks[0].FilePath}
	s.chunks[key] = append(s.chunks[key], chunks...)
	return nil
}

func (s *Store) ReplaceFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string, newGeneration int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fileKey{tenantID, repositoryID, branch, filePath}
	existing := s.chunks[key]

	var kept []model.ChunkMetadata
	var deletedIDs []string
	for _, c := range existing {
		if c.Generation < newGeneration {
			deletedIDs = append(deletedIDs, c.ChunkID)
			continue
		}
		kept = append(kept, c)
	}
	s.chunks[key] = kept
	return deletedIDs, nil
}

func (s *Store) CreateIndexingJob(ctx context.Context, vectorNamespace, tenantID, repositoryID, branch string, commit model.CommitContext) (model.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := model.IndexingJob{
		JobID:           uuid.NewString(),
		TenantID:        tenantID,
		RepositoryID:    repositoryID,
		Branch:          branch,
		Status:          model.JobPending,
		CommitSHA:       commit.CommitSHA,
		CommitMessage:   commit.CommitMessage,
		CommitDate:      commit.CommitDate,
		Author:          commit.Author,
		VectorNamespace: vectorNamespace,
		StartedAt:       time.Now(),
	}
	s.jobs[job.JobID] = job
	return job, nil
}

func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, filesProcessed, chunksCreated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return apperrors.NotFound("indexing_job")
	}
	job.FilesProcessed = filesProcessed
	job.ChunksCreated = chunksCreated
	job.Status = model.JobRunning
	s.jobs[jobID] = job
	return nil
}

func (s *Store) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return apperrors.NotFound("indexing_job")
	}
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.ErrorMessage = errMsg
	s.jobs[jobID] = job
	return nil
}

func (s *Store) GetIndexingJob(ctx context.Context, jobID string) (*model.IndexingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *Store) ListIndexingJobs(ctx context.Context, tenantID, repositoryID string) ([]model.IndexingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.IndexingJob
	for _, job := range s.jobs {
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		if repositoryID != "" && job.RepositoryID != repositoryID {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) GetFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string) ([]model.ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := append([]model.ChunkMetadata(nil), s.chunks[fileKey{tenantID, repositoryID, branch, filePath}]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (s *Store) GetIndexedFiles(ctx context.Context, tenantID, repositoryID, branch string) ([]model.IndexedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.IndexedFile
	for key, f := range s.files {
		if key.TenantID == tenantID && key.RepositoryID == repositoryID && key.Branch == branch {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) HasRunningJobs(ctx context.Context, tenantID, repositoryID, branch string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.TenantID == tenantID && job.RepositoryID == repositoryID && job.Branch == branch {
			if job.Status == model.JobPending || job.Status == model.JobRunning {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) GetFileMetadata(ctx context.Context, tenantID, repositoryID, branch, filePath string) (*model.IndexedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileKey{tenantID, repositoryID, branch, filePath}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *Store) GetFilesMetadata(ctx context.Context, tenantID string, filePaths []string) ([]model.IndexedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(filePaths))
	for _, p := range filePaths {
		want[p] = true
	}

	var out []model.IndexedFile
	for key, f := range s.files {
		if key.TenantID == tenantID && want[key.FilePath] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) GetProjectBranch(ctx context.Context, tenantID, repositoryID, branch string) (*model.ProjectBranch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pb, ok := s.branches[branchKey{tenantID, repositoryID, branch}]
	if !ok {
		return nil, nil
	}
	return &pb, nil
}

func (s *Store) GetProjectBranches(ctx context.Context, tenantID string, repoBranches [][2]string) ([]model.ProjectBranch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ProjectBranch
	for _, rb := range repoBranches {
		if pb, ok := s.branches[branchKey{tenantID, rb[0], rb[1]}]; ok {
			out = append(out, pb)
		}
	}
	return out, nil
}

func (s *Store) EnqueueFile(ctx context.Context, jobID, tenantID, repositoryID, branch, filePath, fileContent, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	row := &model.QueuedFile{
		ID:           s.nextID,
		JobID:        jobID,
		TenantID:     tenantID,
		RepositoryID: repositoryID,
		Branch:       branch,
		FilePath:     filePath,
		FileContent:  fileContent,
		ContentHash:  contentHash,
		Status:       model.QueueQueued,
		CreatedAt:    time.Now(),
	}
	s.queue = append(s.queue, row)
	return nil
}

// DequeueFile claims the oldest queued row under the store-wide
// mutex. A single mutex stands in for FOR UPDATE SKIP LOCKED: it
// gives the same at-most-one-worker-per-row guarantee, just without
// letting other rows' claims proceed concurrently under load.
func (s *Store) DequeueFile(ctx context.Context) (*store.DequeuedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.queue {
		if row.Status != model.QueueQueued {
			continue
		}
		now := time.Now()
		row.Status = model.QueueProcessing
		row.StartedAt = &now
		return &store.DequeuedFile{
			QueueID:      row.ID,
			JobID:        row.JobID,
			TenantID:     row.TenantID,
			RepositoryID: row.RepositoryID,
			Branch:       row.Branch,
			FilePath:     row.FilePath,
			FileContent:  row.FileContent,
			ContentHash:  row.ContentHash,
			RetryCount:   row.RetryCount,
		}, nil
	}
	return nil, nil
}

func (s *Store) GetQueueDepth(ctx context.Context, jobID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, row := range s.queue {
		if row.JobID == jobID && (row.Status == model.QueueQueued || row.Status == model.QueueProcessing) {
			count++
		}
	}
	return count, nil
}

func (s *Store) IncrementJobProgress(ctx context.Context, jobID string, filesDelta, chunksDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return apperrors.NotFound("indexing_job")
	}
	job.FilesProcessed += filesDelta
	job.ChunksCreated += chunksDelta
	s.jobs[jobID] = job
	return nil
}

func (s *Store) MarkFileCompleted(ctx context.Context, jobID, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.queue {
		if row.JobID == jobID && row.FilePath == filePath {
			now := time.Now()
			row.Status = model.QueueCompleted
			row.CompletedAt = &now
			return nil
		}
	}
	return apperrors.NotFound("queued_file")
}

func (s *Store) MarkFileFailed(ctx context.Context, jobID, filePath, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.queue {
		if row.JobID == jobID && row.FilePath == filePath {
			now := time.Now()
			row.Status = model.QueueFailed
			row.ErrorMessage = errMsg
			row.CompletedAt = &now
			return nil
		}
	}
	return apperrors.NotFound("queued_file")
}

func (s *Store) MarkFileCancelled(ctx context.Context, jobID, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.queue {
		if row.JobID == jobID && row.FilePath == filePath {
			now := time.Now()
			row.Status = model.QueueCancelled
			row.CompletedAt = &now
			return nil
		}
	}
	return apperrors.NotFound("queued_file")
}

func (s *Store) CheckJobComplete(ctx context.Context, jobID string) (bool, error) {
	depth, err := s.GetQueueDepth(ctx, jobID)
	if err != nil {
		return false, err
	}
	return depth == 0, nil
}

func (s *Store) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return apperrors.NotFound("indexing_job")
	}
	switch job.Status {
	case model.JobCompleted, model.JobFailed, model.JobCancelled:
		return nil
	}
	job.Status = model.JobCancelled
	s.jobs[jobID] = job
	return nil
}

var _ store.Repository = (*Store)(nil)
