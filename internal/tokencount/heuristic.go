package tokencount

import (
	"hash/fnv"
	"math"
	"sync"
	"unicode"
)

// HeuristicCounter estimates tokens from character-class counts when
// no exact tokenizer is registered for a model. It supports one-shot
// calibration from (text, actual) pairs.
type HeuristicCounter struct {
	name          string
	maxTokens     int
	mu            sync.RWMutex
	charsPerToken float64
	calibration   map[uint64]int
}

// NewHeuristicCounter creates a counter with the default 4.0
// chars-per-token ratio.
func NewHeuristicCounter(name string, maxTokens int) *HeuristicCounter {
	return NewHeuristicCounterWithRatio(name, maxTokens, 4.0)
}

// NewHeuristicCounterWithRatio creates a counter with a custom
// chars-per-token ratio, for models whose subword tokenizer runs
// denser or sparser than the 4.0 English-text default (e.g. 3.5 for
// jina-bert-v2, as registered in registry.go).
func NewHeuristicCounterWithRatio(name string, maxTokens int, charsPerToken float64) *HeuristicCounter {
	return &HeuristicCounter{
		name:          name,
		maxTokens:     maxTokens,
		charsPerToken: charsPerToken,
	}
}

func (c *HeuristicCounter) Name() string    { return c.name }
func (c *HeuristicCounter) MaxTokens() int  { return c.maxTokens }

// Calibrate recomputes charsPerToken as the ratio of total characters
// to total actual tokens across the sample, and caches each sample's
// exact count keyed by a hash of its text so Count returns it exactly
// on a repeat call.
func (c *HeuristicCounter) Calibrate(samples []CalibrationSample) {
	if len(samples) == 0 {
		return
	}

	var totalChars, totalTokens int
	for _, s := range samples {
		totalChars += len(s.Text)
		totalTokens += s.ActualTokens
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if totalTokens > 0 {
		c.charsPerToken = float64(totalChars) / float64(totalTokens)
	}

	c.calibration = make(map[uint64]int, len(samples))
	for _, s := range samples {
		c.calibration[hashText(s.Text)] = s.ActualTokens
	}
}

// CalibrationSample is one (text, actual token count) pair fed to
// Calibrate.
type CalibrationSample struct {
	Text         string
	ActualTokens int
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func (c *HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.calibration != nil {
		if cached, ok := c.calibration[hashText(text)]; ok {
			return cached
		}
	}

	var wordChars, whitespace, punctuation, other int
	for _, r := range text {
		switch {
		case isAlnum(r):
			wordChars++
		case isSpace(r):
			whitespace++
		case isASCIIPunct(r):
			punctuation++
		default:
			other++
		}
	}

	estimated := float64(wordChars)/c.charsPerToken +
		float64(punctuation)*0.8 +
		float64(other)*0.9 +
		float64(whitespace)*0.1

	return int(math.Ceil(estimated))
}

func (c *HeuristicCounter) CountBatch(texts []string) []int {
	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = c.Count(t)
	}
	return counts
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}

func isASCIIPunct(r rune) bool {
	return r >= '!' && r <= '~' && !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
