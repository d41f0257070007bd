package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codetriever/ingestcore/internal/chunker"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/pkg/config"
	"github.com/codetriever/ingestcore/pkg/ignore"
)

// Scanner walks a repository directory and collects the files a job
// submission should include, applying ignore patterns, a supported-
// language filter, and a size cap. It feeds cmd/index's submission
// path rather than the worker, which only ever sees files already
// past this filter.
type Scanner struct {
	config           *config.IndexingConfig
	ignoreMatcher    *ignore.Matcher
	maxFileSizeBytes int64
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.IndexingConfig, ignorePatterns []string) *Scanner {
	return &Scanner{
		config:           cfg,
		ignoreMatcher:    ignore.NewMatcher(ignorePatterns),
		maxFileSizeBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
	}
}

// ScanResult is the outcome of a directory walk.
type ScanResult struct {
	Files        []string
	TotalFiles   int
	SkippedFiles int
	Languages    map[string]int
	Errors       []error
}

// Scan walks repoPath and returns the paths eligible for submission.
func (s *Scanner) Scan(repoPath string) (*ScanResult, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path is not a directory: %s", repoPath)
	}

	result := &ScanResult{
		Files:     make([]string, 0),
		Languages: make(map[string]int),
		Errors:    make([]error, 0),
	}

	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, walkErr))
			return nil
		}

		relPath, err := filepath.Rel(repoPath, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if s.shouldIgnoreDir(relPath, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if s.ignoreMatcher.ShouldIgnore(relPath) {
			result.SkippedFiles++
			return nil
		}

		result.TotalFiles++

		language := chunker.DetectLanguage(path)
		if language == "" {
			result.SkippedFiles++
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to get file info for %s: %w", path, err))
			result.SkippedFiles++
			return nil
		}
		if fileInfo.Size() > s.maxFileSizeBytes {
			result.SkippedFiles++
			return nil
		}

		result.Files = append(result.Files, path)
		result.Languages[language]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}

// IsSupported returns true if the file extension is a recognized language.
func (s *Scanner) IsSupported(filePath string) bool {
	return chunker.DetectLanguage(filePath) != ""
}

func (s *Scanner) shouldIgnoreDir(relPath, dirName string) bool {
	if strings.HasPrefix(dirName, ".") && dirName != "." {
		return true
	}
	return s.ignoreMatcher.ShouldIgnore(relPath)
}

// Submissions reads every scanned file into a model.SubmittedFile,
// ready for indexer.Indexer.StartJob.
func (s *Scanner) Submissions(repoPath string) ([]model.SubmittedFile, *ScanResult, error) {
	result, err := s.Scan(repoPath)
	if err != nil {
		return nil, nil, err
	}

	submissions := make([]model.SubmittedFile, 0, len(result.Files))
	for _, path := range result.Files {
		content, err := os.ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to read %s: %w", path, err))
			continue
		}
		relPath, err := filepath.Rel(repoPath, path)
		if err != nil {
			relPath = path
		}
		submissions = append(submissions, model.SubmittedFile{
			Path:    filepath.ToSlash(relPath),
			Content: string(content),
			Hash:    model.ContentHash(content),
		})
	}

	return submissions, result, nil
}
