package vectordb

import "testing"

func TestPayloadRoundTripsChunkFields(t *testing.T) {
	p := ChunkPoint{
		ChunkID:      "c1",
		TenantID:     "t1",
		RepositoryID: "repo",
		Branch:       "main",
		FilePath:     "a.go",
		Generation:   3,
		StartLine:    10,
		EndLine:      20,
		ByteStart:    100,
		ByteEnd:      200,
		Kind:         "function",
		Name:         "add",
		Language:     "go",
		Content:      "func add() {}",
	}

	payload := payloadFor(p)
	chunk := chunkFromPayload(payload)

	if chunk.FilePath != p.FilePath {
		t.Errorf("FilePath = %q, want %q", chunk.FilePath, p.FilePath)
	}
	if chunk.Content != p.Content {
		t.Errorf("Content = %q, want %q", chunk.Content, p.Content)
	}
	if chunk.StartLine != p.StartLine || chunk.EndLine != p.EndLine {
		t.Errorf("line range = [%d,%d], want [%d,%d]", chunk.StartLine, chunk.EndLine, p.StartLine, p.EndLine)
	}
	if chunk.ByteStart != p.ByteStart || chunk.ByteEnd != p.ByteEnd {
		t.Errorf("byte range = [%d,%d], want [%d,%d]", chunk.ByteStart, chunk.ByteEnd, p.ByteStart, p.ByteEnd)
	}
	if chunk.Kind != p.Kind || chunk.Name != p.Name || chunk.Language != p.Language {
		t.Errorf("kind/name/language = %q/%q/%q, want %q/%q/%q", chunk.Kind, chunk.Name, chunk.Language, p.Kind, p.Name, p.Language)
	}
}

func TestSearchFilterScopesToTenantOnly(t *testing.T) {
	f := searchFilter(SearchQuery{TenantID: "t1"})
	if len(f.Must) != 1 {
		t.Fatalf("expected exactly one condition with no repository/branch filter, got %d", len(f.Must))
	}
}

func TestSearchFilterAddsRepositoryAndBranch(t *testing.T) {
	f := searchFilter(SearchQuery{TenantID: "t1", RepositoryID: "repo", Branch: "main"})
	if len(f.Must) != 3 {
		t.Fatalf("expected tenant+repository+branch conditions, got %d", len(f.Must))
	}
}

func TestDistanceMetricDefaultsToCosine(t *testing.T) {
	c := &Client{cfg: Config{}}
	if got := c.distanceMetric(); got.String() != "Cosine" {
		t.Errorf("default distance metric = %v, want Cosine", got)
	}
}
