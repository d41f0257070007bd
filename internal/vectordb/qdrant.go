// Package vectordb wraps the Qdrant client behind a write/read
// protocol built around deterministic-id upserts, a
// tenant/repository/branch/generation payload, and idempotent deletes.
package vectordb

import (
	"context"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codetriever/ingestcore/internal/apperrors"
	"github.com/codetriever/ingestcore/internal/model"
)

// Config parameterizes a Client.
type Config struct {
	Host           string
	Port           int
	UseTLS         bool
	CollectionName string
	VectorSize     int
	DistanceMetric string // "cosine" | "dot" | "euclidean"
}

// Client is a tenant-aware Qdrant wrapper. One Client serves every
// tenant/repository/branch; isolation between them is enforced by
// payload filters on every search and delete, not by separate
// collections.
type Client struct {
	cfg    Config
	client *qdrant.Client
}

// NewClient dials Qdrant over gRPC. It does not create the collection;
// call EnsureCollection for that.
func NewClient(cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	qc, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, UseTLS: cfg.UseTLS})
	if err != nil {
		return nil, apperrors.VectorStorage("connect", cfg.CollectionName, err)
	}
	return &Client{cfg: cfg, client: qc}, nil
}

// CollectionExists reports whether the configured collection exists.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := c.client.CollectionExists(ctx, c.cfg.CollectionName)
	if err != nil {
		return false, apperrors.VectorStorage("collection_exists", c.cfg.CollectionName, err)
	}
	return exists, nil
}

// EnsureCollection creates the collection if it does not already
// exist. Idempotent: calling it twice is a no-op the second time.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.cfg.CollectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(c.cfg.VectorSize),
					Distance: c.distanceMetric(),
				},
			},
		},
	})
	if err != nil {
		return apperrors.VectorStorage("create_collection", c.cfg.CollectionName, err)
	}
	return nil
}

// DropCollection deletes the entire collection. Used by tests and by
// a full tenant teardown, never by per-file indexing.
func (c *Client) DropCollection(ctx context.Context) error {
	if err := c.client.DeleteCollection(ctx, c.cfg.CollectionName); err != nil {
		return apperrors.VectorStorage("drop_collection", c.cfg.CollectionName, err)
	}
	return nil
}

// ChunkPoint is one chunk ready to be written to the vector store: a
// deterministic id, its embedding, and the payload fields a search
// result is enriched from.
type ChunkPoint struct {
	ChunkID      string
	Embedding    []float32
	TenantID     string
	RepositoryID string
	Branch       string
	FilePath     string
	Generation   int64
	StartLine    int
	EndLine      int
	ByteStart    int
	ByteEnd      int
	Kind         string
	Name         string
	Language     string
	Content      string
}

// StoreChunks upserts points by their deterministic chunk id; writing
// the same id twice overwrites rather than duplicates.
func (c *Client) StoreChunks(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ChunkID},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: p.Embedding},
				},
			},
			Payload: payloadFor(p),
		}
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.cfg.CollectionName,
		Points:         qpoints,
	})
	if err != nil {
		return apperrors.VectorStorage("upsert", c.cfg.CollectionName, err)
	}
	return nil
}

// DeleteChunks removes points by id. Deleting an id that is not
// present is not an error, matching Qdrant's own idempotent delete
// semantics.
func (c *Client) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.cfg.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return apperrors.VectorStorage("delete", c.cfg.CollectionName, err)
	}
	return nil
}

// DeleteByFile removes every chunk for one tenant/repository/branch/
// file, any generation. Used when a file is removed from the tree
// entirely, not on an ordinary content update (which instead replaces
// by generation via ReplaceFileChunks + a targeted DeleteChunks).
func (c *Client) DeleteByFile(ctx context.Context, tenantID, repositoryID, branch, filePath string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.cfg.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: fileFilter(tenantID, repositoryID, branch, filePath),
			},
		},
	})
	if err != nil {
		return apperrors.VectorStorage("delete_by_file", c.cfg.CollectionName, err)
	}
	return nil
}

// SearchQuery parameterizes Search.
type SearchQuery struct {
	Embedding    []float32
	TenantID     string
	RepositoryID string // optional filter
	Branch       string // optional filter, requires RepositoryID
	Limit        int
}

// Search runs an ANN query and returns matches ordered by descending
// cosine similarity, bounded by Limit.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]model.SearchMatch, error) {
	limit := uint64(q.Limit)
	if limit == 0 {
		limit = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: c.cfg.CollectionName,
		Query:          qdrant.NewQuery(q.Embedding...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		Filter:         searchFilter(q),
	}

	results, err := c.client.Query(ctx, query)
	if err != nil {
		return nil, apperrors.VectorStorage("search", c.cfg.CollectionName, err)
	}

	matches := make([]model.SearchMatch, len(results))
	for i, r := range results {
		matches[i] = model.SearchMatch{
			Chunk:      chunkFromPayload(r.Payload),
			Similarity: float64(r.Score),
		}
	}
	return matches, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) distanceMetric() qdrant.Distance {
	switch c.cfg.DistanceMetric {
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func payloadFor(p ChunkPoint) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"tenant_id":     qdrant.NewValueString(p.TenantID),
		"repository_id": qdrant.NewValueString(p.RepositoryID),
		"branch":        qdrant.NewValueString(p.Branch),
		"file_path":     qdrant.NewValueString(p.FilePath),
		"generation":    qdrant.NewValueInt(p.Generation),
		"start_line":    qdrant.NewValueInt(int64(p.StartLine)),
		"end_line":      qdrant.NewValueInt(int64(p.EndLine)),
		"byte_start":    qdrant.NewValueInt(int64(p.ByteStart)),
		"byte_end":      qdrant.NewValueInt(int64(p.ByteEnd)),
		"kind":          qdrant.NewValueString(p.Kind),
		"name":          qdrant.NewValueString(p.Name),
		"language":      qdrant.NewValueString(p.Language),
		"content":       qdrant.NewValueString(p.Content),
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) model.CodeChunk {
	return model.CodeChunk{
		FilePath:  payload["file_path"].GetStringValue(),
		Content:   payload["content"].GetStringValue(),
		StartLine: int(payload["start_line"].GetIntegerValue()),
		EndLine:   int(payload["end_line"].GetIntegerValue()),
		ByteStart: int(payload["byte_start"].GetIntegerValue()),
		ByteEnd:   int(payload["byte_end"].GetIntegerValue()),
		Kind:      payload["kind"].GetStringValue(),
		Name:      payload["name"].GetStringValue(),
		Language:  payload["language"].GetStringValue(),
	}
}

func fileFilter(tenantID, repositoryID, branch, filePath string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordCondition("tenant_id", tenantID),
			keywordCondition("repository_id", repositoryID),
			keywordCondition("branch", branch),
			keywordCondition("file_path", filePath),
		},
	}
}

func searchFilter(q SearchQuery) *qdrant.Filter {
	must := []*qdrant.Condition{keywordCondition("tenant_id", q.TenantID)}
	if q.RepositoryID != "" {
		must = append(must, keywordCondition("repository_id", q.RepositoryID))
	}
	if q.Branch != "" {
		must = append(must, keywordCondition("branch", q.Branch))
	}
	return &qdrant.Filter{Must: must}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
