// Command search-test runs one ad hoc semantic search query against a
// running store/vector-database pair and prints the ranked matches.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/codetriever/ingestcore/internal/embedpool"
	"github.com/codetriever/ingestcore/internal/embeddings"
	"github.com/codetriever/ingestcore/internal/search"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/internal/vectordb"
	"github.com/codetriever/ingestcore/pkg/config"
)

func main() {
	query := flag.String("query", "JWT token validation", "Search query")
	tenantID := flag.String("tenant", "default", "Tenant ID")
	repositoryID := flag.String("repository", "", "Repository ID (optional, scopes the search)")
	branch := flag.String("branch", "", "Branch (optional, scopes the search)")
	limit := flag.Int("limit", 5, "Maximum number of results")
	flag.Parse()

	slog.Info("starting search-test", "query", *query, "tenant", *tenantID, "repository", *repositoryID)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	repo, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	vectors, err := vectordb.NewClient(vectordb.Config{
		Host:           cfg.VectorDB.Host,
		Port:           cfg.VectorDB.Port,
		CollectionName: cfg.VectorDB.CollectionName,
		VectorSize:     cfg.VectorDB.VectorSize,
		DistanceMetric: cfg.VectorDB.DistanceMetric,
	})
	if err != nil {
		log.Fatalf("failed to connect to vector store: %v", err)
	}

	pool := embedpool.New(embedpool.Config{
		PoolSize:     cfg.Embeddings.PoolSize,
		BatchSize:    cfg.Embeddings.BatchSize,
		BatchTimeout: time.Duration(cfg.Embeddings.BatchTimeoutMS) * time.Millisecond,
		ModelFactory: func() embedpool.Model { return embeddings.NewOllamaModel(&cfg.Embeddings) },
	})
	defer pool.Close()

	searcher := search.New(pool, vectors, repo)

	start := time.Now()
	matches, err := searcher.Search(context.Background(), *tenantID, *repositoryID, *branch, *query, *limit)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	duration := time.Since(start)

	slog.Info("search completed", "duration", duration, "results_found", len(matches))
	if len(matches) == 0 {
		slog.Warn("no results found")
		return
	}

	for i, m := range matches {
		chunk := m.Chunk
		slog.Info("search result",
			"rank", i+1,
			"file", chunk.FilePath,
			"lines", chunk.StartLine,
			"name", chunk.Name,
			"similarity", m.Similarity,
			"language", chunk.Language,
			"kind", chunk.Kind)
	}
}
