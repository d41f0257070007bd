// Package embeddings adapts an Ollama embedding endpoint to the
// embedpool.Model interface: one worker in the pool owns one
// OllamaModel and calls Embed with its whole batch.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/codetriever/ingestcore/pkg/config"
)

// OllamaModel talks to a single Ollama instance's /api/embeddings
// endpoint. Ollama embeds one prompt per request, so a batch is
// fanned out over a small bounded pool of concurrent HTTP calls.
type OllamaModel struct {
	config     *config.EmbeddingsConfig
	httpClient *http.Client
	baseURL    string
}

// maxConcurrentRequests bounds per-batch fan-out so one worker's
// batch doesn't open unbounded connections against Ollama.
const maxConcurrentRequests = 10

// NewOllamaModel builds an OllamaModel from cfg. Intended as an
// embedpool.Config.ModelFactory: call once per pool worker.
func NewOllamaModel(cfg *config.EmbeddingsConfig) *OllamaModel {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		ForceAttemptHTTP2:   false,
	}

	m := &OllamaModel{
		config:  cfg,
		baseURL: cfg.OllamaURL,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}

	m.logMRLConfig()
	return m
}

// embedRequest is the Ollama /api/embeddings request body.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama /api/embeddings response body.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed satisfies embedpool.Model. A single text skips the fan-out;
// multiple texts are embedded concurrently, bounded by
// maxConcurrentRequests, and the whole batch fails together on the
// first error (matching embedpool's all-or-nothing batch contract).
func (m *OllamaModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		embedding, err := m.embedOne(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{embedding}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	embeddings := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	semaphore := make(chan struct{}, maxConcurrentRequests)
	var wg sync.WaitGroup
	var firstError sync.Once

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, txt string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			embedding, err := m.embedOne(ctx, txt)
			if err != nil {
				errs[idx] = fmt.Errorf("embedding item %d: %w", idx, err)
				firstError.Do(cancel)
				return
			}
			embeddings[idx] = embedding
		}(i, text)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("batch embedding failed at index %d: %w", i, err)
		}
	}
	return embeddings, nil
}

// embedOne requests a single embedding, applying the safety-net
// truncation, MRL dimension reduction, and normalization the config
// asks for.
func (m *OllamaModel) embedOne(ctx context.Context, text string) ([]float32, error) {
	// nomic-embed-text has an 8192-token limit (~4 chars/token). The
	// chunker already keeps chunks within budget; this truncation is
	// a last-resort safety net, not the primary size control.
	const maxChars = 4000
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	reqBody, err := json.Marshal(embedRequest{Model: m.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", m.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	fullDim := m.config.FullDimension
	if fullDim == 0 {
		fullDim = 768
	}
	if len(decoded.Embedding) != fullDim {
		return nil, fmt.Errorf("expected %d dimensions from model, got %d", fullDim, len(decoded.Embedding))
	}

	embedding := decoded.Embedding
	if m.config.UseMRL && m.config.Dimensions < fullDim {
		embedding = applyMRL(embedding, m.config.Dimensions)
	}
	if m.config.Normalize {
		embedding = normalize(embedding)
	}
	return embedding, nil
}

// HealthCheck verifies Ollama is reachable and the model responds.
func (m *OllamaModel) HealthCheck(ctx context.Context) error {
	if _, err := m.embedOne(ctx, "test"); err != nil {
		return fmt.Errorf("ollama health check failed: %w", err)
	}
	return nil
}

// normalize L2-normalizes a vector. A zero vector is returned as-is.
func normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}

	magnitude := float32(1.0) / float32(math.Sqrt(float64(sum)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v * magnitude
	}
	return normalized
}

// applyMRL truncates embedding to targetDim per Matryoshka
// Representation Learning: nomic-embed-text is trained so that
// 64/128/256/512/768-dimension prefixes all remain semantically
// useful, so slicing (rather than re-projecting) is sufficient.
func applyMRL(embedding []float32, targetDim int) []float32 {
	validDims := []int{64, 128, 256, 512, 768}
	isValid := false
	for _, dim := range validDims {
		if targetDim == dim {
			isValid = true
			break
		}
	}

	if !isValid {
		switch {
		case targetDim < 64:
			targetDim = 64
		case targetDim > 768:
			targetDim = 768
		default:
			for i := 0; i < len(validDims)-1; i++ {
				if targetDim > validDims[i] && targetDim < validDims[i+1] {
					if targetDim-validDims[i] < validDims[i+1]-targetDim {
						targetDim = validDims[i]
					} else {
						targetDim = validDims[i+1]
					}
					break
				}
			}
		}
	}

	if targetDim > len(embedding) {
		targetDim = len(embedding)
	}

	sliced := make([]float32, targetDim)
	copy(sliced, embedding[:targetDim])
	return sliced
}

func (m *OllamaModel) logMRLConfig() {
	fullDim := m.config.FullDimension
	if fullDim == 0 {
		fullDim = 768
	}

	if m.config.UseMRL {
		reduction := float64(fullDim-m.config.Dimensions) / float64(fullDim) * 100
		log.Printf("embeddings: MRL enabled %dd -> %dd (%.0f%% smaller)", fullDim, m.config.Dimensions, reduction)
	} else {
		log.Printf("embeddings: MRL disabled, using full %dd embeddings", fullDim)
	}
}
