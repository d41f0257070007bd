package tokencount

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter is an exact counter backed by the cl100k_base
// encoding, the encoding shared by the gpt-3.5/gpt-4 family. Every GPT
// model variant in the registry maps to one of these, parameterized
// only by name and max_tokens.
type TiktokenCounter struct {
	name      string
	maxTokens int
	enc       *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding. It returns an
// error (never panics) so the registry can skip counters that fail to
// initialize, per the registry's failure semantics.
func NewTiktokenCounter(name string, maxTokens int) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding for %s: %w", name, err)
	}
	return &TiktokenCounter{name: name, maxTokens: maxTokens, enc: enc}, nil
}

func (c *TiktokenCounter) Name() string   { return c.name }
func (c *TiktokenCounter) MaxTokens() int { return c.maxTokens }

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) CountBatch(texts []string) []int {
	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = c.Count(t)
	}
	return counts
}
