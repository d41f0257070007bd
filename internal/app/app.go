// Package app assembles the durable store, vector database, embedding
// pool, and indexer/search/worker services into a single Services
// value, injected into whichever orchestrator drives it: the MCP
// server (internal/mcp) or the standalone indexing command
// (cmd/index).
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/codetriever/ingestcore/internal/chunker"
	"github.com/codetriever/ingestcore/internal/embeddings"
	"github.com/codetriever/ingestcore/internal/embedpool"
	"github.com/codetriever/ingestcore/internal/indexer"
	"github.com/codetriever/ingestcore/internal/metrics"
	"github.com/codetriever/ingestcore/internal/search"
	"github.com/codetriever/ingestcore/internal/store"
	"github.com/codetriever/ingestcore/internal/tokencount"
	"github.com/codetriever/ingestcore/internal/vectordb"
	"github.com/codetriever/ingestcore/internal/worker"
	"github.com/codetriever/ingestcore/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Services is the full set of wired components a caller needs to
// drive ingestion and search against one configuration. Fields are
// exported so an orchestrator can reach past Indexer/Searcher for the
// lower-level pieces (e.g. Repo, Vectors) when it needs them directly.
type Services struct {
	Config   *config.Config
	Repo     store.Repository
	Vectors  *vectordb.Client
	Pool     *embedpool.Pool
	Metrics  *metrics.Collector
	Indexer  *indexer.Indexer
	Searcher *search.Service
	Worker   *worker.Worker

	workerCancel context.CancelFunc
}

// New opens the store and vector database, builds the embedding pool
// and optional metrics collector, and wires the indexer, search, and
// worker services against them. It does not start the worker; call
// RunWorker once the caller is ready to drain the queue.
func New(cfg *config.Config) (*Services, error) {
	repo, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	vectors, err := vectordb.NewClient(vectordb.Config{
		Host:           cfg.VectorDB.Host,
		Port:           cfg.VectorDB.Port,
		CollectionName: cfg.VectorDB.CollectionName,
		VectorSize:     cfg.VectorDB.VectorSize,
		DistanceMetric: cfg.VectorDB.DistanceMetric,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector DB client: %w", err)
	}
	if err := vectors.EnsureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure vector collection: %w", err)
	}

	var cache embedpool.EmbeddingCache
	if cfg.Cache.Enabled {
		cache = embedpool.NewRedisCache(embedpool.RedisCacheConfig{
			Client: redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password, DB: cfg.Cache.DB}),
			TTL:    time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		})
	}

	pool := embedpool.New(embedpool.Config{
		PoolSize:     cfg.Embeddings.PoolSize,
		BatchSize:    cfg.Embeddings.BatchSize,
		BatchTimeout: time.Duration(cfg.Embeddings.BatchTimeoutMS) * time.Millisecond,
		ModelFactory: func() embedpool.Model { return embeddings.NewOllamaModel(&cfg.Embeddings) },
		Cache:        cache,
	})

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Server.Name)
	}

	idx := indexer.New(repo)
	searcher := search.NewWithOptions(pool, vectors, repo, cfg.Search.CacheSize, time.Duration(cfg.Search.TimeoutSecond)*time.Second).WithMetrics(collector)

	w := worker.New(worker.Config{
		Repo:            repo,
		Vectors:         vectors,
		Embeddings:      pool,
		Counter:         tokencount.NewRegistry().Default(),
		Budget:          chunker.NewTokenBudget(cfg.Chunking.LargeFileMaxTokens, cfg.Chunking.OverlapLines),
		SplitLargeUnits: cfg.Chunking.EnableHierarchicalChunking,
		Metrics:         collector,
	})

	return &Services{
		Config:   cfg,
		Repo:     repo,
		Vectors:  vectors,
		Pool:     pool,
		Metrics:  collector,
		Indexer:  idx,
		Searcher: searcher,
		Worker:   w,
	}, nil
}

// RunWorker starts the background worker in its own goroutine, scoped
// to a child of ctx, and remembers the cancel function for Close.
func (s *Services) RunWorker(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	s.workerCancel = cancel
	go s.Worker.Run(workerCtx)
}

// Close stops the background worker, if RunWorker started one, and
// releases the embedding pool.
func (s *Services) Close() error {
	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}
