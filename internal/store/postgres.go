package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/model"
)

// PostgresStore is the production Repository backed by PostgreSQL
// through GORM. Reads and writes share one connection pool here; a
// split read/write/analytics pool layout can be wired at the
// cmd/server level by passing distinct *gorm.DB values constructed
// against the same schema.
type PostgresStore struct {
	db *gorm.DB
}

// Open connects to dsn and runs AutoMigrate for every model this
// store owns.
func Open(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperrors.DatabaseError("open", err)
	}

	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.ProjectBranch{},
		&model.IndexedFile{},
		&model.ChunkMetadata{},
		&model.IndexingJob{},
		&model.QueuedFile{},
	); err != nil {
		return nil, apperrors.DatabaseError("automigrate", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an already-open *gorm.DB, used when the
// caller manages distinct pools for reads, writes, and analytics.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateTenant(ctx context.Context, name string) (string, error) {
	t := model.Tenant{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return "", apperrors.DatabaseError("create_tenant", err)
	}
	return t.ID, nil
}

func (s *PostgresStore) EnsureProjectBranch(ctx context.Context, commit model.CommitContext, tenantID, repositoryID, branch string) (model.ProjectBranch, error) {
	var pb model.ProjectBranch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tenant_id = ? AND repository_id = ? AND branch = ?", tenantID, repositoryID, branch).
			First(&pb).Error
		if err == nil {
			pb.LastIndexedAt = time.Now()
			return tx.Save(&pb).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		pb = model.ProjectBranch{
			TenantID:      tenantID,
			RepositoryID:  repositoryID,
			Branch:        branch,
			RepositoryURL: commit.RepositoryURL,
			FirstSeenAt:   now,
			LastIndexedAt: now,
		}
		return tx.Create(&pb).Error
	})
	if err != nil {
		return model.ProjectBranch{}, apperrors.DatabaseError("ensure_project_branch", err)
	}
	return pb, nil
}

func (s *PostgresStore) CheckFileState(ctx context.Context, tenantID, repositoryID, branch, filePath, contentHash string) (model.FileState, error) {
	var existing model.IndexedFile
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND repository_id = ? AND branch = ? AND file_path = ?", tenantID, repositoryID, branch, filePath).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FileState{Kind: model.FileNew, NewGeneration: 1}, nil
	}
	if err != nil {
		return model.FileState{}, apperrors.DatabaseError("check_file_state", err)
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

func (s *PostgresStore) RecordFileIndexing(ctx context.Context, tenantID, repositoryID, branch string, meta FileMetadata) (model.IndexedFile, error) {
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

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "repository_id"}, {Name: "branch"}, {Name: "file_path"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return model.IndexedFile{}, apperrors.DatabaseError("record_file_indexing", err)
	}
	return row, nil
}

func (s *PostgresStore) InsertChunks(ctx context.Context, tenantID, repositoryID, branch string, chunks []model.ChunkMetadata) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return apperrors.DatabaseError("insert_chunks", err)
	}
	return nil
}

// ReplaceFileChunks bumps the file's generation visibility by
// deleting every chunk_metadata row for this key whose generation is
// older than newGeneration, inside one transaction. It returns the
// deleted chunk ids so the caller can issue the matching vector-store
// delete before upserting the new generation's vectors.
func (s *PostgresStore) ReplaceFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string, newGeneration int64) ([]string, error) {
	var deletedIDs []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []model.ChunkMetadata
		if err := tx.Where(
			"tenant_id = ? AND repository_id = ? AND branch = ? AND file_path = ? AND generation < ?",
			tenantID, repositoryID, branch, filePath, newGeneration,
		).Find(&stale).Error; err != nil {
			return err
		}

		for _, c := range stale {
			deletedIDs = append(deletedIDs, c.ChunkID)
		}

		if len(stale) == 0 {
			return nil
		}

		return tx.Where(
			"tenant_id = ? AND repository_id = ? AND branch = ? AND file_path = ? AND generation < ?",
			tenantID, repositoryID, branch, filePath, newGeneration,
		).Delete(&model.ChunkMetadata{}).Error
	})
	if err != nil {
		return nil, apperrors.DatabaseError("replace_file_chunks", err)
	}
	return deletedIDs, nil
}

func (s *PostgresStore) CreateIndexingJob(ctx context.Context, vectorNamespace, tenantID, repositoryID, branch string, commit model.CommitContext) (model.IndexingJob, error) {
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
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return model.IndexingJob{}, apperrors.DatabaseError("create_indexing_job", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, filesProcessed, chunksCreated int) error {
	err := s.db.WithContext(ctx).Model(&model.IndexingJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"files_processed": filesProcessed,
			"chunks_created":  chunksCreated,
			"status":          model.JobRunning,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("update_job_progress", err)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.IndexingJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"status":        status,
			"completed_at":  &now,
			"error_message": errMsg,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("complete_job", err)
	}
	return nil
}

func (s *PostgresStore) GetIndexingJob(ctx context.Context, jobID string) (*model.IndexingJob, error) {
	var job model.IndexingJob
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.DatabaseError("get_indexing_job", err)
	}
	return &job, nil
}

func (s *PostgresStore) ListIndexingJobs(ctx context.Context, tenantID, repositoryID string) ([]model.IndexingJob, error) {
	q := s.db.WithContext(ctx).Model(&model.IndexingJob{})
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if repositoryID != "" {
		q = q.Where("repository_id = ?", repositoryID)
	}
	var jobs []model.IndexingJob
	if err := q.Order("started_at desc").Find(&jobs).Error; err != nil {
		return nil, apperrors.DatabaseError("list_indexing_jobs", err)
	}
	return jobs, nil
}

func (s *PostgresStore) GetFileChunks(ctx context.Context, tenantID, repositoryID, branch, filePath string) ([]model.ChunkMetadata, error) {
	var chunks []model.ChunkMetadata
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND repository_id = ? AND branch = ? AND file_path = ?", tenantID, repositoryID, branch, filePath).
		Order("chunk_index asc").
		Find(&chunks).Error
	if err != nil {
		return nil, apperrors.DatabaseError("get_file_chunks", err)
	}
	return chunks, nil
}

func (s *PostgresStore) GetIndexedFiles(ctx context.Context, tenantID, repositoryID, branch string) ([]model.IndexedFile, error) {
	var files []model.IndexedFile
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND repository_id = ? AND branch = ?", tenantID, repositoryID, branch).
		Find(&files).Error
	if err != nil {
		return nil, apperrors.DatabaseError("get_indexed_files", err)
	}
	return files, nil
}

func (s *PostgresStore) HasRunningJobs(ctx context.Context, tenantID, repositoryID, branch string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.IndexingJob{}).
		Where("tenant_id = ? AND repository_id = ? AND branch = ? AND status IN ?", tenantID, repositoryID, branch, []model.JobStatus{model.JobPending, model.JobRunning}).
		Count(&count).Error
	if err != nil {
		return false, apperrors.DatabaseError("has_running_jobs", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) GetFileMetadata(ctx context.Context, tenantID, repositoryID, branch, filePath string) (*model.IndexedFile, error) {
	var f model.IndexedFile
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND repository_id = ? AND branch = ? AND file_path = ?", tenantID, repositoryID, branch, filePath).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.DatabaseError("get_file_metadata", err)
	}
	return &f, nil
}

func (s *PostgresStore) GetFilesMetadata(ctx context.Context, tenantID string, filePaths []string) ([]model.IndexedFile, error) {
	if len(filePaths) == 0 {
		return nil, nil
	}
	var files []model.IndexedFile
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND file_path IN ?", tenantID, filePaths).
		Find(&files).Error
	if err != nil {
		return nil, apperrors.DatabaseError("get_files_metadata", err)
	}
	return files, nil
}

func (s *PostgresStore) GetProjectBranch(ctx context.Context, tenantID, repositoryID, branch string) (*model.ProjectBranch, error) {
	var pb model.ProjectBranch
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND repository_id = ? AND branch = ?", tenantID, repositoryID, branch).
		First(&pb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.DatabaseError("get_project_branch", err)
	}
	return &pb, nil
}

func (s *PostgresStore) GetProjectBranches(ctx context.Context, tenantID string, repoBranches [][2]string) ([]model.ProjectBranch, error) {
	if len(repoBranches) == 0 {
		return nil, nil
	}

	clauseDB := s.db.WithContext(ctx).Session(&gorm.Session{NewDB: true}).Where("tenant_id = ?", tenantID)
	for _, rb := range repoBranches {
		clauseDB = clauseDB.Or("tenant_id = ? AND repository_id = ? AND branch = ?", tenantID, rb[0], rb[1])
	}

	var branches []model.ProjectBranch
	if err := clauseDB.Find(&branches).Error; err != nil {
		return nil, apperrors.DatabaseError("get_project_branches", err)
	}
	return branches, nil
}

func (s *PostgresStore) EnqueueFile(ctx context.Context, jobID, tenantID, repositoryID, branch, filePath, fileContent, contentHash string) error {
	row := model.QueuedFile{
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
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperrors.DatabaseError("enqueue_file", err)
	}
	return nil
}

// DequeueFile claims the oldest queued row across every tenant's jobs
// using SELECT ... FOR UPDATE SKIP LOCKED, guaranteeing at most one
// worker ever owns a given row concurrently. It returns nil, nil when
// the queue is empty.
func (s *PostgresStore) DequeueFile(ctx context.Context) (*DequeuedFile, error) {
	var claimed *DequeuedFile

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.QueuedFile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.QueueQueued).
			Order("created_at asc").
			Limit(1).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&row).Updates(map[string]any{
			"status":     model.QueueProcessing,
			"started_at": &now,
		}).Error; err != nil {
			return err
		}

		claimed = &DequeuedFile{
			QueueID:      row.ID,
			JobID:        row.JobID,
			TenantID:     row.TenantID,
			RepositoryID: row.RepositoryID,
			Branch:       row.Branch,
			FilePath:     row.FilePath,
			FileContent:  row.FileContent,
			ContentHash:  row.ContentHash,
			RetryCount:   row.RetryCount,
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.DatabaseError("dequeue_file", err)
	}
	return claimed, nil
}

func (s *PostgresStore) GetQueueDepth(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.QueuedFile{}).
		Where("job_id = ? AND status IN ?", jobID, []model.QueueStatus{model.QueueQueued, model.QueueProcessing}).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.DatabaseError("get_queue_depth", err)
	}
	return count, nil
}

func (s *PostgresStore) IncrementJobProgress(ctx context.Context, jobID string, filesDelta, chunksDelta int) error {
	err := s.db.WithContext(ctx).Model(&model.IndexingJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"files_processed": gorm.Expr("files_processed + ?", filesDelta),
			"chunks_created":  gorm.Expr("chunks_created + ?", chunksDelta),
		}).Error
	if err != nil {
		return apperrors.DatabaseError("increment_job_progress", err)
	}
	return nil
}

func (s *PostgresStore) MarkFileCompleted(ctx context.Context, jobID, filePath string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.QueuedFile{}).
		Where("job_id = ? AND file_path = ?", jobID, filePath).
		Updates(map[string]any{
			"status":       model.QueueCompleted,
			"completed_at": &now,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("mark_file_completed", err)
	}
	return nil
}

func (s *PostgresStore) MarkFileFailed(ctx context.Context, jobID, filePath, errMsg string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.QueuedFile{}).
		Where("job_id = ? AND file_path = ?", jobID, filePath).
		Updates(map[string]any{
			"status":        model.QueueFailed,
			"error_message": errMsg,
			"completed_at":  &now,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("mark_file_failed", err)
	}
	return nil
}

func (s *PostgresStore) MarkFileCancelled(ctx context.Context, jobID, filePath string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.QueuedFile{}).
		Where("job_id = ? AND file_path = ?", jobID, filePath).
		Updates(map[string]any{
			"status":       model.QueueCancelled,
			"completed_at": &now,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("mark_file_cancelled", err)
	}
	return nil
}

func (s *PostgresStore) CheckJobComplete(ctx context.Context, jobID string) (bool, error) {
	depth, err := s.GetQueueDepth(ctx, jobID)
	if err != nil {
		return false, err
	}
	return depth == 0, nil
}

// CancelJob marks jobID cancelled unless it has already reached a
// terminal status, so a completed or already-cancelled job is left
// alone.
func (s *PostgresStore) CancelJob(ctx context.Context, jobID string) error {
	err := s.db.WithContext(ctx).Model(&model.IndexingJob{}).
		Where("job_id = ? AND status NOT IN ?", jobID, []model.JobStatus{model.JobCompleted, model.JobFailed, model.JobCancelled}).
		Updates(map[string]any{
			"status": model.JobCancelled,
		}).Error
	if err != nil {
		return apperrors.DatabaseError("cancel_job", err)
	}
	return nil
}

var _ Repository = (*PostgresStore)(nil)
