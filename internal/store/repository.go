// Package store defines the durable metadata and queue contract
// (Repository) and provides two implementations: a GORM/Postgres
// backend for production and an in-memory memstore for tests.
// Ported from the FileRepository trait of the pre-distillation Rust
// metadata crate.
package store

import (
	"context"
	"time"

	"github.com/codetriever/ingestcore/internal/model"
)

// FileMetadata is the full set of fields RecordFileIndexing writes
// for a freshly indexed file, including its path.
type FileMetadata struct {
	Path          string
	ContentHash   string
	Generation    int64
	CommitSHA     string
	CommitMessage string
	CommitDate    time.Time
	Author        string
	Content       string
	SizeBytes     int64
	Encoding      string
}

// DequeuedFile is one row claimed out of the global file queue. It
// carries TenantID so the worker can scope every downstream call
// without a second lookup.
type DequeuedFile struct {
	QueueID      int64
	JobID        string
	TenantID     string
	RepositoryID string
	Branch       string
	FilePath     string
	FileContent  string
	ContentHash  string
	RetryCount   int
}

// Repository is the full durable-store surface the indexer, worker,
// and search service depend on. One implementation talks to
// PostgreSQL through GORM; another (memstore) is an in-process fake
// for tests.
type Repository interface {
	CreateTenant(ctx context.Context, name string) (string, error)

	EnsureProjectBranch(ctx context.Context, ctxInfo model.CommitContext, tenantID, repositoryID, branch string) (model.ProjectBranch, error)

	CheckFileState(ctx context.Context, tenantID, repositoryID, branch, filePath, contentHash string) (model.FileState, error)
	RecordFileIndexing(ctx context.Context, tenantID, repositoryID, branch string, meta FileMetadata) (model.IndexedFile, error)

	InsertChunks(ctx context.Context, tenantID, repositoryID, branch string, chunks []model.ChunkMetadata) error
	ReplaceFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string, newGeneration int64) ([]string, error)

	CreateIndexingJob(ctx context.Context, vectorNamespace, tenantID, repositoryID, branch string, commit model.CommitContext) (model.IndexingJob, error)
	UpdateJobProgress(ctx context.Context, jobID string, filesProcessed, chunksCreated int) error
	CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
	GetIndexingJob(ctx context.Context, jobID string) (*model.IndexingJob, error)
	ListIndexingJobs(ctx context.Context, tenantID, repositoryID string) ([]model.IndexingJob, error)

	GetFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string) ([]model.ChunkMetadata, error)
	GetIndexedFiles(ctx context.Context, tenantID, repositoryID, branch string) ([]model.IndexedFile, error)
	HasRunningJobs(ctx context.Context, tenantID, repositoryID, branch string) (bool, error)
	GetFileMetadata(ctx context.Context, tenantID, repositoryID, branch, filePath string) (*model.IndexedFile, error)
	GetFilesMetadata(ctx context.Context, tenantID string, filePaths []string) ([]model.IndexedFile, error)

	GetProjectBranch(ctx context.Context, tenantID, repositoryID, branch string) (*model.ProjectBranch, error)
	GetProjectBranches(ctx context.Context, tenantID string, repoBranches [][2]string) ([]model.ProjectBranch, error)

	EnqueueFile(ctx context.Context, jobID, tenantID, repositoryID, branch, filePath, fileContent, contentHash string) error
	DequeueFile(ctx context.Context) (*DequeuedFile, error)
	GetQueueDepth(ctx context.Context, jobID string) (int64, error)
	IncrementJobProgress(ctx context.Context, jobID string, filesDelta, chunksDelta int) error
	MarkFileCompleted(ctx context.Context, jobID, filePath string) error
	MarkFileFailed(ctx context.Context, jobID, filePath, errMsg string) error
	MarkFileCancelled(ctx context.Context, jobID, filePath string) error
	CheckJobComplete(ctx context.Context, jobID string) (bool, error)

	// CancelJob marks jobID cancelled if it is not already in a
	// terminal state. The worker observes this between files and
	// abandons the job's remaining queued rows rather than failing
	// them.
	CancelJob(ctx context.Context, jobID string) error
}
