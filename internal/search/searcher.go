// Package search resolves a natural-language query to ranked code
// chunks with repository context: an LRU result cache, a single query
// embedding, a vector-store ANN search, and best-effort metadata
// enrichment, all guarded by a bounded timeout. Results are returned in
// the vector store's ANN order as-is, with no local re-ranking pass.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/metrics"
	"github.com/codetriever/ingestcore/internal/model"
	"github.com/codetriever/ingestcore/internal/retry"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/internal/vectordb"
)

// DefaultCacheSize bounds the LRU result cache when no override is given.
const DefaultCacheSize = 100

// DefaultTimeout bounds a single search call when no override is given.
const DefaultTimeout = 30 * time.Second

// Embedder is the subset of *embedpool.Pool this service needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher is the subset of *vectordb.Client this service needs.
type VectorSearcher interface {
	Search(ctx context.Context, q vectordb.SearchQuery) ([]model.SearchMatch, error)
}

// Service answers semantic search queries.
type Service struct {
	embeddings Embedder
	vectors    VectorSearcher
	repo       store.Repository
	cache      *lru.Cache[string, []model.SearchMatch]
	timeout    time.Duration
	metrics    *metrics.Collector
}

// WithMetrics attaches a metrics.Collector; a nil Collector (the
// zero value before this is called) disables recording.
func (s *Service) WithMetrics(c *metrics.Collector) *Service {
	s.metrics = c
	return s
}

// New builds a Service with the default cache size and timeout.
func New(embeddings Embedder, vectors VectorSearcher, repo store.Repository) *Service {
	return NewWithOptions(embeddings, vectors, repo, DefaultCacheSize, DefaultTimeout)
}

// NewWithOptions builds a Service with an explicit cache size and timeout.
func NewWithOptions(embeddings Embedder, vectors VectorSearcher, repo store.Repository, cacheSize int, timeout time.Duration) *Service {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cache, _ := lru.New[string, []model.SearchMatch](cacheSize)
	return &Service{embeddings: embeddings, vectors: vectors, repo: repo, cache: cache, timeout: timeout}
}

// Search resolves query to ranked matches scoped to a tenant and,
// optionally, a repository/branch. Results are served from the LRU
// cache when a prior identical query is still resident.
func (s *Service) Search(ctx context.Context, tenantID, repositoryID, branch, query string, limit int) ([]model.SearchMatch, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := cacheKey(tenantID, repositoryID, branch, query, limit)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.ObserveCacheHit(true)
		s.metrics.ObserveSearch("cache_hit", time.Since(started))
		return cached, nil
	}
	s.metrics.ObserveCacheHit(false)

	vectors, embedErr := s.embeddings.Embed(ctx, []string{query})
	if embedErr != nil {
		s.metrics.ObserveSearch("error", time.Since(started))
		if ctx.Err() != nil {
			return nil, apperrors.SearchTimeout(query, ctx.Err())
		}
		return nil, apperrors.EmbeddingFailed(1, "", embedErr)
	}
	embedding := vectors[0]

	var matches []model.SearchMatch
	err := retry.Do(ctx, func(ctx context.Context) error {
		results, searchErr := s.vectors.Search(ctx, vectordb.SearchQuery{
			Embedding:    embedding,
			TenantID:     tenantID,
			RepositoryID: repositoryID,
			Branch:       branch,
			Limit:        limit,
		})
		if searchErr != nil {
			return searchErr
		}
		matches = results
		return nil
	})
	if err != nil {
		s.metrics.ObserveSearch("error", time.Since(started))
		if ctx.Err() != nil {
			return nil, apperrors.SearchTimeout(query, ctx.Err())
		}
		return nil, err
	}

	s.enrich(ctx, tenantID, matches)

	s.cache.Add(key, matches)
	s.metrics.ObserveSearch("ok", time.Since(started))
	return matches, nil
}

// enrich attaches RepositoryMetadata to each match via one batch file
// lookup and one batch project-branch lookup. Failure degrades to
// metadata-less results rather than failing the search.
func (s *Service) enrich(ctx context.Context, tenantID string, matches []model.SearchMatch) {
	if len(matches) == 0 {
		return
	}

	paths := uniquePaths(matches)
	files, err := s.repo.GetFilesMetadata(ctx, tenantID, paths)
	if err != nil {
		return
	}
	fileByPath := make(map[string]model.IndexedFile, len(files))
	repoBranchSeen := make(map[[2]string]bool)
	var repoBranches [][2]string
	for _, f := range files {
		fileByPath[f.FilePath] = f
		key := [2]string{f.RepositoryID, f.Branch}
		if !repoBranchSeen[key] {
			repoBranchSeen[key] = true
			repoBranches = append(repoBranches, key)
		}
	}

	branches, err := s.repo.GetProjectBranches(ctx, tenantID, repoBranches)
	if err != nil {
		branches = nil
	}
	branchByKey := make(map[[2]string]model.ProjectBranch, len(branches))
	for _, b := range branches {
		branchByKey[[2]string{b.RepositoryID, b.Branch}] = b
	}

	for i := range matches {
		f, ok := fileByPath[matches[i].Chunk.FilePath]
		if !ok {
			continue
		}
		meta := &model.RepositoryMetadata{
			CommitSHA:  f.CommitSHA,
			CommitDate: f.CommitDate,
			IndexedAt:  f.IndexedAt,
		}
		if b, ok := branchByKey[[2]string{f.RepositoryID, f.Branch}]; ok {
			meta.RepositoryID = b.RepositoryID
			meta.Branch = b.Branch
			meta.RepositoryURL = b.RepositoryURL
		}
		matches[i].Repository = meta
	}
}

func uniquePaths(matches []model.SearchMatch) []string {
	seen := make(map[string]bool, len(matches))
	var paths []string
	for _, m := range matches {
		if !seen[m.Chunk.FilePath] {
			seen[m.Chunk.FilePath] = true
			paths = append(paths, m.Chunk.FilePath)
		}
	}
	return paths
}

func cacheKey(tenantID, repositoryID, branch, query string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", tenantID, repositoryID, branch, query, limit)
}

// FormatResults renders matches for a text-based surface (CLI, MCP
// tool response).
func FormatResults(matches []model.SearchMatch) string {
	if len(matches) == 0 {
		return "No results found."
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Found %d results:\n\n", len(matches))

	for i, m := range matches {
		chunk := m.Chunk
		location := fmt.Sprintf("%s:%d-%d", chunk.FilePath, chunk.StartLine, chunk.EndLine)
		if chunk.Name != "" {
			location += fmt.Sprintf(" (in %s)", chunk.Name)
		}

		fmt.Fprintf(&out, "%d. %s\n", i+1, location)
		fmt.Fprintf(&out, "   similarity: %.3f\n", m.Similarity)
		fmt.Fprintf(&out, "   Language: %s, Type: %s\n", chunk.Language, chunk.Kind)
		if m.Repository != nil {
			fmt.Fprintf(&out, "   Repository: %s@%s\n", m.Repository.RepositoryID, m.Repository.Branch)
		}

		lines := strings.Split(chunk.Content, "\n")
		previewLines := 3
		if len(lines) < previewLines {
			previewLines = len(lines)
		}
		out.WriteString("   Preview:\n")
		for j := 0; j < previewLines; j++ {
			line := strings.TrimSpace(lines[j])
			if len(line) > 80 {
				line = line[:80] + "..."
			}
			fmt.Fprintf(&out, "   | %s\n", line)
		}
		if len(lines) > previewLines {
			fmt.Fprintf(&out, "   | ... (%d more lines)\n", len(lines)-previewLines)
		}
		out.WriteString("\n")
	}

	return out.String()
}
