package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codetriever/ingestcore/pkg/config"
)

func TestNormalization(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected float64 // expected magnitude after normalization
	}{
		{name: "normalize vector", input: []float32{3.0, 4.0}, expected: 1.0},
		{name: "normalize zero vector", input: []float32{0.0, 0.0, 0.0}, expected: 0.0},
		{name: "normalize unit vector", input: []float32{1.0, 0.0, 0.0}, expected: 1.0},
		{name: "normalize negative values", input: []float32{-3.0, -4.0}, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := normalize(tt.input)

			var magnitude float64
			for _, v := range normalized {
				magnitude += float64(v * v)
			}
			magnitude = math.Sqrt(magnitude)

			if math.Abs(magnitude-tt.expected) > 0.0001 {
				t.Errorf("expected magnitude %.4f, got %.4f", tt.expected, magnitude)
			}
			if len(normalized) != len(tt.input) {
				t.Errorf("expected length %d, got %d", len(tt.input), len(normalized))
			}
		})
	}
}

func TestApplyMRLSnapsToNearestValidDimension(t *testing.T) {
	full := make([]float32, 768)
	for i := range full {
		full[i] = float32(i)
	}

	got := applyMRL(full, 200)
	if len(got) != 256 {
		t.Fatalf("expected 200 to snap to 256, got dimension %d", len(got))
	}
	for i := range got {
		if got[i] != full[i] {
			t.Fatalf("expected a prefix slice, diverged at index %d", i)
		}
	}
}

func newTestModel(t *testing.T, handler http.HandlerFunc) (*OllamaModel, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := &config.EmbeddingsConfig{
		Model:         "nomic-embed-text",
		OllamaURL:     srv.URL,
		FullDimension: 4,
		Dimensions:    4,
	}
	return NewOllamaModel(cfg), srv.Close
}

func TestEmbedSingleText(t *testing.T) {
	model, closeSrv := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "hello" {
			t.Errorf("unexpected prompt %q", req.Prompt)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3, 0.4}})
	})
	defer closeSrv()

	got, err := model.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 4 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestEmbedBatchFansOutConcurrently(t *testing.T) {
	model, closeSrv := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2, 3, 4}})
	})
	defer closeSrv()

	texts := []string{"a", "b", "c", "d", "e"}
	got, err := model.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(got))
	}
	for i, v := range got {
		if len(v) != 4 {
			t.Fatalf("result %d missing embedding: %+v", i, v)
		}
	}
}

func TestEmbedFailsWholeBatchOnAnyError(t *testing.T) {
	model, closeSrv := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2, 3, 4}})
	})
	defer closeSrv()

	_, err := model.Embed(context.Background(), []string{"good", "bad", "good"})
	if err == nil {
		t.Fatal("expected batch failure when one item errors")
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	model, closeSrv := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2}})
	})
	defer closeSrv()

	if _, err := model.Embed(context.Background(), []string{"hi"}); err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
}
