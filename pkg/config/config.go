package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion/search server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	VectorDB   VectorDBConfig   `yaml:"vectordb"`
	Cache      CacheConfig      `yaml:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ignore     IgnoreConfig     `yaml:"ignore_patterns"`
	Languages  LanguagesConfig  `yaml:"supported_languages"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DatabaseConfig configures the relational store (job queue + chunk
// metadata). The pool-size fields name a split by workload: writers
// (queue claims, metadata writes), readers (search enrichment), and a
// smaller analytics pool for status/listing queries. store.Open reads
// only DSN: it opens one shared connection pool and does not apply
// these sizes.
type DatabaseConfig struct {
	DSN               string `yaml:"dsn"`
	WritePoolSize     int    `yaml:"write_pool_size"`
	ReadPoolSize      int    `yaml:"read_pool_size"`
	AnalyticsPoolSize int    `yaml:"analytics_pool_size"`
}

type ChunkingConfig struct {
	MaxLines          int  `yaml:"max_lines"`
	OverlapLines      int  `yaml:"overlap_lines"`
	RespectBoundaries bool `yaml:"respect_boundaries"`
	// Size-tiered token limits. app.New uses LargeFileMaxTokens as the
	// hard token budget for every file; the small and medium limits are
	// not applied and no file-size tiering takes place.
	SmallFileMaxTokens  int `yaml:"small_file_max_tokens"`  // files < 1000 lines
	MediumFileMaxTokens int `yaml:"medium_file_max_tokens"` // files 1000-5000 lines
	LargeFileMaxTokens  int `yaml:"large_file_max_tokens"`  // files > 5000 lines
	// Hierarchical chunking: split large spans that exceed budget.
	EnableHierarchicalChunking bool `yaml:"enable_hierarchical_chunking"`
	MaxChunkSizeBytes          int  `yaml:"max_chunk_size_bytes"`
}

type IndexingConfig struct {
	BatchSize       int  `yaml:"batch_size"`
	MaxFileSizeMB   int  `yaml:"max_file_size_mb"`
	ParallelWorkers int  `yaml:"parallel_workers"`
	Background      bool `yaml:"background"`
	Incremental     bool `yaml:"incremental"`
}

// SearchConfig tunes the search path. search.Service returns the
// vector store's ANN ordering as-is, with no local re-ranking weights.
type SearchConfig struct {
	MaxResults    int `yaml:"max_results"`
	CacheSize     int `yaml:"cache_size"`
	TimeoutSecond int `yaml:"timeout_seconds"`
}

type EmbeddingsConfig struct {
	Model         string `yaml:"model"`
	OllamaURL     string `yaml:"ollama_url"`
	BatchSize     int    `yaml:"batch_size"`
	Dimensions    int    `yaml:"dimensions"`     // target MRL dimension (64, 128, 256, 512, 768)
	FullDimension int    `yaml:"full_dimension"` // full embedding dimension from model (768 for nomic)
	ContextLength int    `yaml:"context_length"`
	Normalize     bool   `yaml:"normalize"`
	UseMRL        bool   `yaml:"use_mrl"`
	PoolSize      int    `yaml:"pool_size"`      // embedpool worker count
	BatchTimeoutMS int   `yaml:"batch_timeout_ms"`
}

type VectorDBConfig struct {
	Type           string `yaml:"type"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	CollectionName string `yaml:"collection_name"`
	DistanceMetric string `yaml:"distance_metric"`
	VectorSize     int    `yaml:"vector_size"`
	OnDiskPayload  bool   `yaml:"on_disk_payload"`
}

// CacheConfig configures the optional Redis-backed embedding cache
// embedpool.Pool consults before submitting work to a worker.
// File-level change detection is handled separately, by content-hash
// generational versioning in internal/store.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

type LanguagesConfig struct {
	Go         LanguageConfig `yaml:"go"`
	Java       LanguageConfig `yaml:"java"`
	TypeScript LanguageConfig `yaml:"typescript"`
	JavaScript LanguageConfig `yaml:"javascript"`
	Python     LanguageConfig `yaml:"python"`
}

type LanguageConfig struct {
	Extensions []string `yaml:"extensions"`
	Parser     string   `yaml:"parser"`
}

// Load loads configuration from file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if configPath := getConfigPath(); configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.Logging.Directory = expandPath(cfg.Logging.Directory)

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "ingestcore",
			Version: "0.0.1",
		},
		Database: DatabaseConfig{
			DSN:               "postgres://localhost:5432/ingestcore?sslmode=disable",
			WritePoolSize:     10,
			ReadPoolSize:      20,
			AnalyticsPoolSize: 5,
		},
		Chunking: ChunkingConfig{
			MaxLines:                   25,
			OverlapLines:               5,
			RespectBoundaries:          true,
			SmallFileMaxTokens:         300,
			MediumFileMaxTokens:        200,
			LargeFileMaxTokens:         150,
			EnableHierarchicalChunking: true,
			MaxChunkSizeBytes:          4000,
		},
		Indexing: IndexingConfig{
			BatchSize:       100,
			MaxFileSizeMB:   1,
			ParallelWorkers: runtime.NumCPU(),
			Background:      true,
			Incremental:     true,
		},
		Search: SearchConfig{
			MaxResults:    5,
			CacheSize:     100,
			TimeoutSecond: 30,
		},
		Embeddings: EmbeddingsConfig{
			Model:          "nomic-embed-text",
			OllamaURL:      "http://localhost:11434",
			BatchSize:      16,
			Dimensions:     256,
			FullDimension:  768,
			ContextLength:  8192,
			Normalize:      true,
			UseMRL:         true,
			PoolSize:       4,
			BatchTimeoutMS: 50,
		},
		VectorDB: VectorDBConfig{
			Type:           "qdrant",
			Host:           "localhost",
			Port:           6334,
			CollectionName: "code_chunks",
			DistanceMetric: "cosine",
			VectorSize:     256,
			OnDiskPayload:  true,
		},
		Cache: CacheConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			TTLSeconds: 86400,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Directory:  "~/.ingestcore/logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Ignore: IgnoreConfig{
			Patterns: []string{
				"target/**",
				"build/**",
				"dist/**",
				"out/**",
				"node_modules/**",
				".pnp/**",
				"**/*.min.js",
				"**/*.bundle.js",
				".git/**",
				".idea/**",
				".vscode/**",
				"*.iml",
			},
		},
		Languages: LanguagesConfig{
			Go: LanguageConfig{
				Extensions: []string{".go"},
				Parser:     "tree-sitter-go",
			},
			Java: LanguageConfig{
				Extensions: []string{".java"},
				Parser:     "tree-sitter-java",
			},
			TypeScript: LanguageConfig{
				Extensions: []string{".ts", ".tsx"},
				Parser:     "tree-sitter-typescript",
			},
			JavaScript: LanguageConfig{
				Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
				Parser:     "tree-sitter-javascript",
			},
			Python: LanguageConfig{
				Extensions: []string{".py"},
				Parser:     "tree-sitter-python",
			},
		},
	}
}

func getConfigPath() string {
	if path := os.Getenv("INGESTCORE_CONFIG"); path != "" {
		return path
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".ingestcore", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.Embeddings.OllamaURL = url
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Embeddings.Model = model
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Addr = addr
		cfg.Cache.Enabled = true
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
