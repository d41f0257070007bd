package embedpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModel embeds deterministically (a one-element vector holding
// len(text)) and records every batch it was asked to
// run, so tests can assert batching behavior.
type fakeModel struct {
	mu      sync.Mutex
	batches [][]string
	delay   time.Duration
	fail    bool
	calls   int32
}

func (m *fakeModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.fail {
		return nil, fmt.Errorf("fake model failure")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestPoolEmbedSingleRequest(t *testing.T) {
	model := &fakeModel{}
	pool := New(Config{
		PoolSize:     1,
		BatchSize:    4,
		BatchTimeout: 20 * time.Millisecond,
		ModelFactory: func() Model { return model },
	})
	defer pool.Close()

	vecs, err := pool.Embed(context.Background(), []string{"hello", "hi"})
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 5 || vecs[1][0] != 2 {
		t.Fatalf("unexpected vectors: %+v", vecs)
	}
}

func TestPoolBatchesConcurrentRequests(t *testing.T) {
	model := &fakeModel{delay: 5 * time.Millisecond}
	pool := New(Config{
		PoolSize:     1,
		BatchSize:    8,
		BatchTimeout: 50 * time.Millisecond,
		ModelFactory: func() Model { return model },
	})
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := pool.Embed(context.Background(), []string{fmt.Sprintf("text-%d", n)})
			if err != nil {
				t.Errorf("Embed error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	model.mu.Lock()
	defer model.mu.Unlock()
	if len(model.batches) == 0 {
		t.Fatal("expected at least one batch to have run")
	}
	if len(model.batches) == 5 {
		t.Error("expected concurrent requests to be coalesced into fewer than 5 batches")
	}
}

func TestPoolRoundRobinsAcrossWorkers(t *testing.T) {
	var modelsMu sync.Mutex
	var models []*fakeModel
	pool := New(Config{
		PoolSize:     3,
		BatchSize:    1,
		BatchTimeout: 5 * time.Millisecond,
		ModelFactory: func() Model {
			m := &fakeModel{}
			modelsMu.Lock()
			models = append(models, m)
			modelsMu.Unlock()
			return m
		},
	})
	defer pool.Close()

	for i := 0; i < 9; i++ {
		if _, err := pool.Embed(context.Background(), []string{fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("Embed error: %v", err)
		}
	}

	used := 0
	for _, m := range models {
		if atomic.LoadInt32(&m.calls) > 0 {
			used++
		}
	}
	if used < 2 {
		t.Fatalf("expected work spread across multiple workers, only %d used", used)
	}
}

func TestPoolPropagatesModelFailureToCaller(t *testing.T) {
	model := &fakeModel{fail: true}
	pool := New(Config{
		PoolSize:     1,
		BatchSize:    4,
		BatchTimeout: 20 * time.Millisecond,
		ModelFactory: func() Model { return model },
	})
	defer pool.Close()

	_, err := pool.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected an error from a failing model")
	}
}

// panicModel panics on every call, exercising worker panic isolation.
type panicModel struct{}

func (panicModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	panic("model blew up")
}

func TestPoolRecoversFromWorkerPanic(t *testing.T) {
	pool := New(Config{
		PoolSize:     1,
		BatchSize:    4,
		BatchTimeout: 20 * time.Millisecond,
		ModelFactory: func() Model { return panicModel{} },
	})
	defer pool.Close()

	_, err := pool.Embed(context.Background(), []string{"boom"})
	if err == nil {
		t.Fatal("expected an error when the model panics instead of a crashed test process")
	}
}

type cacheStub struct {
	mu    sync.Mutex
	store map[string][]float32
	gets  int32
}

func newCacheStub() *cacheStub {
	return &cacheStub{store: make(map[string][]float32)}
}

func (c *cacheStub) Get(ctx context.Context, contentHash string) ([]float32, bool) {
	atomic.AddInt32(&c.gets, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[contentHash]
	return v, ok
}

func (c *cacheStub) Set(ctx context.Context, contentHash string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[contentHash] = vector
}

func TestPoolUsesCacheToSkipReembedding(t *testing.T) {
	model := &fakeModel{}
	cache := newCacheStub()
	pool := New(Config{
		PoolSize:     1,
		BatchSize:    4,
		BatchTimeout: 20 * time.Millisecond,
		ModelFactory: func() Model { return model },
		Cache:        cache,
	})
	defer pool.Close()

	ctx := context.Background()
	if _, err := pool.Embed(ctx, []string{"repeat me"}); err != nil {
		t.Fatalf("first embed failed: %v", err)
	}
	if _, err := pool.Embed(ctx, []string{"repeat me"}); err != nil {
		t.Fatalf("second embed failed: %v", err)
	}

	if atomic.LoadInt32(&model.calls) != 1 {
		t.Fatalf("expected the model to run once, ran %d times", model.calls)
	}
}
