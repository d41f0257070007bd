package embedpool

import "sync"

// Tokenizer is the shared preprocessing handle models use to turn
// text into token ids before inference. It is expensive to load, so
// every worker in a Pool shares one instance rather than loading its
// own copy.
type Tokenizer interface {
	Encode(text string) []int
}

// TokenizerHandle lazily loads a Tokenizer at most once, regardless of
// how many goroutines call Get concurrently, mirroring the pool's
// OnceCell-guarded tokenizer in the implementation this package is
// ported from.
type TokenizerHandle struct {
	once  sync.Once
	load  func() (Tokenizer, error)
	value Tokenizer
	err   error
}

// NewTokenizerHandle wraps load, which constructs the tokenizer on
// first use.
func NewTokenizerHandle(load func() (Tokenizer, error)) *TokenizerHandle {
	return &TokenizerHandle{load: load}
}

// Get returns the shared tokenizer, loading it on the first call.
func (h *TokenizerHandle) Get() (Tokenizer, error) {
	h.once.Do(func() {
		h.value, h.err = h.load()
	})
	return h.value, h.err
}
