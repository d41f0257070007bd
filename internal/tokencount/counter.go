// Package tokencount estimates model-specific token counts without
// requiring model inference: exact tiktoken-backed counters for
// registered model families, falling back to a calibratable
// character-class heuristic for anything unrecognized.
package tokencount

// Counter is the contract every registered token counter satisfies.
type Counter interface {
	Name() string
	MaxTokens() int
	Count(text string) int
	CountBatch(texts []string) []int
}
