// Command index submits a repository directory as one indexing job
// against the durable store/queue, runs a single worker to drain it,
// and prints a summary on completion.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/codetriever/ingestcore/internal/app"
	"github.com/codetriever/ingestcore/internal/indexer"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/pkg/config"
)

func main() {
	repoPath, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to get current directory: %v", err)
	}
	if len(os.Args) > 1 {
		repoPath = os.Args[1]
	}

	repositoryID := os.Getenv("REPOSITORY_ID")
	if repositoryID == "" {
		repositoryID = repoPath
	}
	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		tenantID = "default"
	}
	branch := os.Getenv("BRANCH")
	if branch == "" {
		branch = "main"
	}

	slog.Info("starting repository indexing", "repository", repositoryID, "path", repoPath)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	svcs, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to wire services: %v", err)
	}
	defer svcs.Close()

	scanner := indexer.NewScanner(&cfg.Indexing, cfg.Ignore.Patterns)
	submissions, scanResult, err := scanner.Submissions(repoPath)
	if err != nil {
		log.Fatalf("failed to scan repository: %v", err)
	}
	slog.Info("scan complete",
		"files_submitted", len(submissions),
		"files_skipped", scanResult.SkippedFiles,
		"languages", scanResult.Languages)

	ctx := context.Background()
	job, err := svcs.Indexer.StartJob(ctx, tenantID, repositoryID, branch, repositoryID, model.CommitContext{}, submissions)
	if err != nil {
		log.Fatalf("failed to start indexing job: %v", err)
	}
	slog.Info("job started", "job_id", job.JobID, "files_total", job.FilesTotal)

	svcs.RunWorker(ctx)

	start := time.Now()
	for {
		current, err := svcs.Indexer.JobStatus(ctx, job.JobID)
		if err != nil {
			log.Fatalf("failed to read job status: %v", err)
		}
		if current.Status == model.JobCompleted || current.Status == model.JobFailed || current.Status == model.JobCancelled {
			report(current, time.Since(start))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func report(job *model.IndexingJob, duration time.Duration) {
	if job.Status == model.JobFailed {
		slog.Error("indexing failed",
			"job_id", job.JobID,
			"error", job.ErrorMessage,
			"files_total", job.FilesTotal,
			"files_processed", job.FilesProcessed,
			"chunks_created", job.ChunksCreated,
			"duration", duration)
		os.Exit(1)
	}

	slog.Info("indexing completed",
		"job_id", job.JobID,
		"status", job.Status,
		"files_total", job.FilesTotal,
		"files_processed", job.FilesProcessed,
		"chunks_created", job.ChunksCreated,
		"duration", duration)
}
