package chunker

import (
	"strings"
	"testing"

	"github.com/codetriever/ingestcore/internal/model"
)

// wordCounter counts tokens as whitespace-separated words, giving
// deterministic, easy-to-reason-about counts for
// assembly tests without depending on tiktoken.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestChunkCoverageFallback(t *testing.T) {
	text := "line one\nline two\nline three\n"
	chunks := Chunk("f.txt", text, wordCounter{}, Options{
		Budget:   NewTokenBudget(100, 0),
		Language: "unknown-language",
	})

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	var coveredEnd int
	for i, c := range chunks {
		if c.ByteEnd <= c.ByteStart {
			t.Fatalf("chunk %d has byte_end <= byte_start: %+v", i, c)
		}
		if c.EndLine < c.StartLine || c.StartLine < 1 {
			t.Fatalf("chunk %d has invalid line range: %+v", i, c)
		}
		if i > 0 && c.ByteStart < coveredEnd {
			t.Fatalf("chunk %d overlaps previous coverage: %+v", i, c)
		}
		coveredEnd = c.ByteEnd
	}

	if coveredEnd != len(text) {
		t.Fatalf("coverage ended at %d, want %d (full file)", coveredEnd, len(text))
	}
}

func TestChunkSoftLimitFlushesAccumulator(t *testing.T) {
	spans := []model.CodeSpan{
		{Content: "one two", StartLine: 1, EndLine: 1, ByteStart: 0, ByteEnd: 7},
		{Content: "three four", StartLine: 2, EndLine: 2, ByteStart: 7, ByteEnd: 17},
		{Content: "five six", StartLine: 3, EndLine: 3, ByteStart: 17, ByteEnd: 25},
	}

	budget := TokenBudget{Hard: 100, Soft: 3}
	chunks := assemble("f.txt", spans, wordCounter{}, Options{Budget: budget})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 separate chunks under a soft limit of 3 words, got %d", len(chunks))
	}
}

func TestChunkHardLimitSplitsLargeUnit(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, strings.Repeat("word ", 5))
	}
	bigContent := strings.Join(lines, "\n")
	spans := []model.CodeSpan{
		{Content: bigContent, StartLine: 1, EndLine: 10, ByteStart: 0, ByteEnd: len(bigContent), Kind: "function", Name: "big"},
	}

	budget := NewTokenBudget(10, 0)
	chunks := assemble("f.txt", spans, wordCounter{}, Options{Budget: budget, SplitLargeUnits: true})

	if len(chunks) < 2 {
		t.Fatalf("expected the oversize span to split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.TokenCount > budget.Hard && c.TokenCount > budget.Soft+5 {
			t.Fatalf("split chunk token count %d exceeds budget substantially", c.TokenCount)
		}
		if c.Kind != "function" || c.Name != "big" {
			t.Fatalf("split chunk did not inherit parent kind/name: %+v", c)
		}
	}
}

func TestChunkHardLimitWithoutSplitEmitsOversizeChunk(t *testing.T) {
	bigContent := strings.Repeat("word ", 50)
	spans := []model.CodeSpan{
		{Content: bigContent, StartLine: 1, EndLine: 10, ByteStart: 0, ByteEnd: len(bigContent)},
	}

	budget := NewTokenBudget(10, 0)
	chunks := assemble("f.txt", spans, wordCounter{}, Options{Budget: budget, SplitLargeUnits: false})

	if len(chunks) != 1 {
		t.Fatalf("expected exactly one oversize chunk when split_large_units=false, got %d", len(chunks))
	}
	if chunks[0].TokenCount <= budget.Hard {
		t.Fatalf("expected the oversize chunk to exceed hard budget, got %d", chunks[0].TokenCount)
	}
}
