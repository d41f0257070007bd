// Package embedpool implements the embedding inference pool: a
// single unbuffered request channel (Embed blocks until the dispatcher
// takes the request; requests are not queued without bound), a
// round-robin dispatcher, and a
// fixed number of worker goroutines that each own one model instance
// and batch requests before running inference. Ported from the
// dispatcher/worker architecture of the pre-distillation Rust
// implementation into Go channels and goroutines.
package embedpool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Model is the inference backend a worker owns exclusively. A single
// call to Embed receives every text in one worker's batch.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache is the optional content-hash-keyed value cache
// consulted before submitting to the pool. Implementations must be
// safe for concurrent use.
type EmbeddingCache interface {
	Get(ctx context.Context, contentHash string) ([]float32, bool)
	Set(ctx context.Context, contentHash string, vector []float32)
}

type request struct {
	ctx      context.Context
	texts    []string
	response chan response
}

type response struct {
	vectors [][]float32
	err     error
}

// workerSlot is the dispatcher's view of one worker: its inbound
// channel and a liveness flag the worker clears on its way out after
// a panic. The dispatcher never sends to a channel flagged dead.
type workerSlot struct {
	ch    chan request
	alive atomic.Bool
}

// Pool is the embedding inference pool: a fixed set of workers, each
// owning one Model, dispatched round-robin and batched per worker.
// Construct with New; call Embed to submit work; call Close to drain
// and shut it down.
type Pool struct {
	requestCh chan request
	poolSize  int
	cache     EmbeddingCache

	closeOnce sync.Once
}

// Config parameterizes a Pool.
type Config struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	ModelFactory func() Model // called once per worker, exclusive ownership
	Cache        EmbeddingCache
}

// New builds a Pool with poolSize workers, each constructed from
// ModelFactory, a round-robin dispatcher, and per-worker bounded
// channels. It returns once every worker and the dispatcher goroutine
// have been started.
func New(cfg Config) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}

	p := &Pool{
		requestCh: make(chan request),
		poolSize:  cfg.PoolSize,
		cache:     cfg.Cache,
	}

	slots := make([]*workerSlot, cfg.PoolSize)
	for i := range slots {
		slot := &workerSlot{ch: make(chan request, cfg.BatchSize*2)}
		slot.alive.Store(true)
		slots[i] = slot
		model := cfg.ModelFactory()
		go runWorker(i, model, slot, cfg.BatchSize, cfg.BatchTimeout)
	}

	go runDispatcher(p.requestCh, slots)

	return p
}

// Embed submits texts for embedding and blocks until the batch
// containing them completes. The output length equals len(texts); a
// failed inference fails every caller batched with it identically.
//
// If a cache is configured, each text is first looked up by its
// content hash; only cache misses are submitted to the pool, and
// fresh results are written back before returning.
func (p *Pool) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	if p.cache != nil {
		for i, t := range texts {
			hash := contentHash(t)
			if v, ok := p.cache.Get(ctx, hash); ok {
				results[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	} else {
		missIdx = indices(len(texts))
		missTexts = texts
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	respCh := make(chan response, 1)
	req := request{ctx: ctx, texts: missTexts, response: respCh}

	select {
	case p.requestCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		for j, idx := range missIdx {
			results[idx] = resp.vectors[j]
			if p.cache != nil {
				p.cache.Set(ctx, contentHash(missTexts[j]), resp.vectors[j])
			}
		}
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the request channel; the dispatcher and every worker
// exit after draining in-flight batches.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.requestCh)
	})
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// runDispatcher round-robins requests across worker slots. The cursor
// advances on every attempt, sent or not, so a dead or momentarily
// full slot is simply skipped on the next request rather than
// revisited immediately; a slot a worker has marked dead (after a
// panic) is skipped and never sent to again, which is how a panicking
// worker is "removed" without the dispatcher itself crashing. Panics
// in the dispatcher's own logic are recovered and logged.
func runDispatcher(requestCh <-chan request, slots []*workerSlot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("embedpool: dispatcher panicked: %v", r)
		}
	}()

	cursor := 0

	for req := range requestCh {
		sent := false

		for attempts := 0; attempts < len(slots); attempts++ {
			slot := slots[cursor%len(slots)]
			cursor++

			if !slot.alive.Load() {
				continue
			}

			select {
			case slot.ch <- req:
				sent = true
			default:
				// Slot's buffer is full; try the next live worker
				// rather than blocking on one slow worker.
				select {
				case slot.ch <- req:
					sent = true
				case <-time.After(10 * time.Millisecond):
				}
			}
			if sent {
				break
			}
		}

		if !sent {
			req.response <- response{err: fmt.Errorf("embedpool: dispatch failed, no live workers could accept the batch")}
		}
	}

	for _, slot := range slots {
		if slot.alive.Load() {
			close(slot.ch)
		}
	}
}

// runWorker owns model exclusively. It blocks for a first request,
// then non-blockingly drains up to batchSize more within
// batchTimeout of the first, concatenates all texts, runs one
// inference, and scatters results back by offset.
//
// A panic anywhere in this loop, including inside model.Embed, is
// caught by the deferred recover below: every request in the batch
// that was in flight receives an error response, the slot is marked
// dead so the dispatcher stops routing to it, and the goroutine
// exits. The pool degrades to its remaining workers instead of
// crashing.
func runWorker(id int, model Model, slot *workerSlot, batchSize int, batchTimeout time.Duration) {
	var inFlight []request

	defer func() {
		if r := recover(); r != nil {
			log.Printf("embedpool: worker %d panicked, removing from pool: %v", id, r)
			slot.alive.Store(false)
			err := fmt.Errorf("embedpool: worker %d failed: %v", id, r)
			for _, req := range inFlight {
				req.response <- response{err: err}
			}
		}
	}()

	for {
		first, ok := <-slot.ch
		if !ok {
			return
		}

		inFlight = []request{first}
		deadline := time.Now().Add(batchTimeout)

	drain:
		for len(inFlight) <= batchSize {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			select {
			case req, ok := <-slot.ch:
				if !ok {
					break drain
				}
				inFlight = append(inFlight, req)
			case <-time.After(remaining):
				break drain
			}
		}

		processBatch(model, inFlight)
		inFlight = nil
	}
}

// processBatch concatenates every request's texts into one inference
// call and scatters the result back by running offset. It does not
// recover panics itself; a panic here unwinds into runWorker's
// deferred recover, which is what actually removes the worker.
func processBatch(model Model, batch []request) {
	var allTexts []string
	for _, req := range batch {
		allTexts = append(allTexts, req.texts...)
	}

	ctx := batch[0].ctx
	vectors, err := model.Embed(ctx, allTexts)
	if err != nil {
		for _, req := range batch {
			req.response <- response{err: err}
		}
		return
	}

	offset := 0
	for _, req := range batch {
		n := len(req.texts)
		req.response <- response{vectors: vectors[offset : offset+n]}
		offset += n
	}
}
