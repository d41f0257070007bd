// Package chunker turns source text into an ordered sequence of
// model.CodeChunk values whose token counts respect a configured
// budget and whose boundaries respect semantic structure where a
// syntax grammar is available.
package chunker

import (
	"github.com/codetriever/ingestcore/internal/model"
)

// TokenBudget bounds chunk assembly. Soft is 90% of Hard. Overlap is
// stored but never consumed by assembly (see DESIGN.md's Open
// Question decision) — kept for forward compatibility with the data
// model's TokenBudget shape.
type TokenBudget struct {
	Hard    int
	Soft    int
	Overlap int
}

// NewTokenBudget builds a budget with Soft derived as floor(0.9*hard).
func NewTokenBudget(hard, overlap int) TokenBudget {
	return TokenBudget{
		Hard:    hard,
		Soft:    int(float64(hard) * 0.9),
		Overlap: overlap,
	}
}

// Options configures a Chunk call beyond the budget: whether an
// oversize semantic unit may be split by lines, and the language tag
// used to pick a syntax grammar.
type Options struct {
	Budget           TokenBudget
	Language         string
	SplitLargeUnits  bool
}

// Chunk converts file text into CodeChunks. It extracts semantic
// spans via a registered syntax grammar when one exists for
// opts.Language, falling back to line-based spans otherwise, then
// assembles spans into token-budgeted chunks.
func Chunk(filePath, text string, counter Counter, opts Options) []model.CodeChunk {
	var spans []model.CodeSpan
	if HasGrammar(opts.Language) {
		spans = ExtractSpans(text, opts.Language)
	} else {
		spans = FallbackSpans(text, opts.Language)
	}
	return assemble(filePath, spans, counter, opts)
}

// Counter is the subset of tokencount.Registry/Counter this package
// needs; kept narrow so tests can supply a trivial stub.
type Counter interface {
	Count(text string) int
}
