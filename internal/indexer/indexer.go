// Package indexer is the ingestion orchestrator: it creates jobs,
// enqueues submitted files onto the durable queue, and answers job
// status queries. It does not itself chunk, embed, or write vectors;
// that per-file work belongs to internal/worker, which drains the
// queue this package fills.
package indexer

import (
	"context"
	"fmt"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/store"
)

// Indexer orchestrates job creation and file enqueue against a
// store.Repository. It holds no in-process job state of its own; job
// status lives in the store so it survives process restarts.
type Indexer struct {
	repo store.Repository
}

// New builds an Indexer over repo.
func New(repo store.Repository) *Indexer {
	return &Indexer{repo: repo}
}

// StartJob creates a tenant/repository/branch's project-branch record
// if needed, creates a new indexing job, and enqueues every submitted
// file. It returns as soon as enqueue completes; indexing happens
// asynchronously as workers drain the queue.
func (idx *Indexer) StartJob(ctx context.Context, tenantID, repositoryID, branch, vectorNamespace string, commit model.CommitContext, files []model.SubmittedFile) (model.IndexingJob, error) {
	if tenantID == "" || repositoryID == "" || branch == "" {
		return model.IndexingJob{}, apperrors.Validation("tenant/repository/branch", "tenant_id, repository_id, and branch are all required")
	}

	if _, err := idx.repo.EnsureProjectBranch(ctx, commit, tenantID, repositoryID, branch); err != nil {
		return model.IndexingJob{}, err
	}

	job, err := idx.repo.CreateIndexingJob(ctx, vectorNamespace, tenantID, repositoryID, branch, commit)
	if err != nil {
		return model.IndexingJob{}, err
	}

	for _, f := range files {
		hash := f.Hash
		if hash == "" {
			hash = model.ContentHash([]byte(f.Content))
		}
		if err := idx.repo.EnqueueFile(ctx, job.JobID, tenantID, repositoryID, branch, f.Path, f.Content, hash); err != nil {
			return job, fmt.Errorf("enqueue %s: %w", f.Path, err)
		}
	}

	if err := idx.repo.UpdateJobProgress(ctx, job.JobID, 0, 0); err != nil {
		return job, err
	}
	job.FilesTotal = len(files)
	job.Status = model.JobRunning

	return job, nil
}

// JobStatus returns the current state of a job, or nil if it does
// not exist.
func (idx *Indexer) JobStatus(ctx context.Context, jobID string) (*model.IndexingJob, error) {
	return idx.repo.GetIndexingJob(ctx, jobID)
}

// ListJobs lists jobs, optionally scoped to a tenant and/or
// repository (either may be empty to mean "all").
func (idx *Indexer) ListJobs(ctx context.Context, tenantID, repositoryID string) ([]model.IndexingJob, error) {
	return idx.repo.ListIndexingJobs(ctx, tenantID, repositoryID)
}

// CancelJob requests cancellation of jobID. A worker observes the
// cancelled status on its next file for that job and abandons the
// job's remaining queued rows instead of processing them.
func (idx *Indexer) CancelJob(ctx context.Context, jobID string) error {
	return idx.repo.CancelJob(ctx, jobID)
}

// IndexStatus reports whether a tenant/repository/branch is currently
// being indexed and its most recently indexed files, used by the
// get_index_status external operation.
func (idx *Indexer) IndexStatus(ctx context.Context, tenantID, repositoryID, branch string) (running bool, files []model.IndexedFile, err error) {
	running, err = idx.repo.HasRunningJobs(ctx, tenantID, repositoryID, branch)
	if err != nil {
		return false, nil, err
	}
	files, err = idx.repo.GetIndexedFiles(ctx, tenantID, repositoryID, branch)
	if err != nil {
		return running, nil, err
	}
	return running, files, nil
}
