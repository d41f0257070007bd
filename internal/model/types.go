package model

import "time"

// Tenant is the identity boundary. Every row downstream of it carries
// a TenantID and every read is tenant-scoped.
type Tenant struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string
	CreatedAt time.Time
}

// ProjectBranch is keyed by (tenant, repository, branch) and created
// lazily the first time that combination is indexed.
type ProjectBranch struct {
	TenantID      string `gorm:"type:uuid;primaryKey"`
	RepositoryID  string `gorm:"primaryKey"`
	Branch        string `gorm:"primaryKey"`
	RepositoryURL string
	FirstSeenAt   time.Time
	LastIndexedAt time.Time
}

// IndexedFile is the authoritative per-file version record keyed by
// (tenant, repository, branch, file_path). Generation strictly
// increases whenever content changes for that key.
type IndexedFile struct {
	TenantID      string `gorm:"type:uuid;primaryKey"`
	RepositoryID  string `gorm:"primaryKey"`
	Branch        string `gorm:"primaryKey"`
	FilePath      string `gorm:"primaryKey"`
	ContentHash   string
	Generation    int64
	CommitSHA     string
	CommitMessage string
	CommitDate    time.Time
	Author        string
	Content       string
	SizeBytes     int64
	Encoding      string
	IndexedAt     time.Time
}

// ChunkMetadata is one row of durable chunk bookkeeping. Only one
// generation is ever "live" in the vector store for a given key.
type ChunkMetadata struct {
	ChunkID      string `gorm:"type:uuid;primaryKey"`
	TenantID     string `gorm:"type:uuid;index:idx_chunk_key"`
	RepositoryID string `gorm:"index:idx_chunk_key"`
	Branch       string `gorm:"index:idx_chunk_key"`
	FilePath     string `gorm:"index:idx_chunk_key"`
	Generation   int64  `gorm:"index:idx_chunk_key"`
	ChunkIndex   int
	StartLine    int
	EndLine      int
	ByteStart    int
	ByteEnd      int
	Kind         string
	Name         string
	Language     string
	CreatedAt    time.Time
}

// JobStatus is the tagged-union-by-string-enum status of an
// IndexingJob. The switch statements that consume it are expected to
// be exhaustive over these five values.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IndexingJob tracks one client submission from enqueue to drain.
// Counters never decrease; terminal statuses are write-once.
type IndexingJob struct {
	JobID           string `gorm:"type:uuid;primaryKey"`
	TenantID        string `gorm:"type:uuid;index"`
	RepositoryID    string
	Branch          string
	Status          JobStatus
	FilesTotal      int
	FilesProcessed  int
	ChunksCreated   int
	CommitSHA       string
	CommitMessage   string
	CommitDate      time.Time
	Author          string
	VectorNamespace string
	StartedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// QueueStatus is the status of a QueuedFile row.
type QueueStatus string

const (
	QueueQueued     QueueStatus = "queued"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
	QueueCancelled  QueueStatus = "cancelled"
)

// QueuedFile is one row of the durable file queue. No unique index is
// declared on (job_id, file_path): enqueueing the same path twice under
// one job creates two rows, whatever their status.
type QueuedFile struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	JobID        string `gorm:"type:uuid;index"`
	TenantID     string `gorm:"type:uuid"`
	RepositoryID string
	Branch       string
	FilePath     string
	FileContent  string
	ContentHash  string
	Status       QueueStatus `gorm:"index"`
	Priority     int
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time `gorm:"index"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// FileStateKind discriminates the outcome of check_file_state.
type FileStateKind string

const (
	FileUnchanged FileStateKind = "unchanged"
	FileNew       FileStateKind = "new"
	FileUpdated   FileStateKind = "updated"
)

// FileState is the tagged union returned by CheckFileState. Callers
// are expected to switch exhaustively on Kind.
type FileState struct {
	Kind          FileStateKind
	OldGeneration int64 // the stored generation; zero when Kind == FileNew
	NewGeneration int64 // the generation to index under, if any
}

// CodeSpan is a candidate region of a file identified either by a
// syntax tree walk or by the line-based fallback, before budgeted
// assembly groups spans into chunks.
type CodeSpan struct {
	Content   string
	StartLine int
	EndLine   int
	ByteStart int
	ByteEnd   int
	Kind      string
	Name      string
	Language  string
}

// CodeChunk is the in-flight, not-directly-stored unit that is
// embedded and written to the vector store.
type CodeChunk struct {
	FilePath   string
	Content    string
	StartLine  int
	EndLine    int
	ByteStart  int
	ByteEnd    int
	Language   string
	Kind       string
	Name       string
	TokenCount int
	Embedding  []float32
}

// RepositoryMetadata is attached to a SearchMatch when enrichment
// succeeds; it is left zero-valued when enrichment is degraded.
type RepositoryMetadata struct {
	RepositoryID  string
	Branch        string
	RepositoryURL string
	CommitSHA     string
	CommitDate    time.Time
	IndexedAt     time.Time
}

// SearchMatch is one ranked result of a semantic search.
type SearchMatch struct {
	Chunk      CodeChunk
	Similarity float64
	Repository *RepositoryMetadata
}

// CommitContext carries the commit fields a job is created with.
type CommitContext struct {
	RepositoryURL string
	CommitSHA     string
	CommitMessage string
	CommitDate    time.Time
	Author        string
}

// SubmittedFile is one file in an index submission, as received from
// the external (HTTP/MCP) surface.
type SubmittedFile struct {
	Path    string
	Content string
	Hash    string // optional, computed if empty
}
