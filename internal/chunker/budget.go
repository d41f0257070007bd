package chunker

import (
	"strings"

	"github.com/codetriever/ingestcore/internal/model"
)

// assemble ports chunk_spans/split_large_span: it walks spans in
// order, accumulating them into a chunk until the soft budget would
// be exceeded, flushing, and splitting any single span that exceeds
// the hard budget by lines.
func assemble(filePath string, spans []model.CodeSpan, counter Counter, opts Options) []model.CodeChunk {
	budget := opts.Budget
	var chunks []model.CodeChunk
	var acc accumulator

	for _, span := range spans {
		spanTokens := counter.Count(span.Content)

		if spanTokens > budget.Hard {
			if !acc.empty() {
				chunks = append(chunks, acc.flush())
			}
			if opts.SplitLargeUnits {
				chunks = append(chunks, splitLargeSpan(filePath, span, counter, budget)...)
			} else {
				chunks = append(chunks, oversizeChunk(filePath, span, spanTokens))
			}
			continue
		}

		if !acc.empty() && acc.tokens+spanTokens > budget.Soft {
			chunks = append(chunks, acc.flush())
			acc = accumulator{}
		}

		acc.append(span, spanTokens)
	}

	if !acc.empty() {
		chunks = append(chunks, acc.flush())
	}

	for i := range chunks {
		chunks[i].FilePath = filePath
	}

	return chunks
}

// accumulator mirrors the Rust implementation's running state:
// joined content, line/byte extents, and running token count.
type accumulator struct {
	content    strings.Builder
	started    bool
	startLine  int
	endLine    int
	byteStart  int
	byteEnd    int
	tokens     int
	kind       string
	name       string
	language   string
}

func (a *accumulator) empty() bool { return !a.started }

func (a *accumulator) append(span model.CodeSpan, tokens int) {
	if !a.started {
		a.content.WriteString(span.Content)
		a.startLine = span.StartLine
		a.byteStart = span.ByteStart
		a.kind = span.Kind
		a.name = span.Name
		a.language = span.Language
		a.started = true
	} else {
		a.content.WriteByte('\n')
		a.content.WriteString(span.Content)
	}
	a.endLine = span.EndLine
	a.byteEnd = span.ByteEnd
	a.tokens += tokens
}

func (a *accumulator) flush() model.CodeChunk {
	return model.CodeChunk{
		Content:    a.content.String(),
		StartLine:  a.startLine,
		EndLine:    a.endLine,
		ByteStart:  a.byteStart,
		ByteEnd:    a.byteEnd,
		Kind:       a.kind,
		Name:       a.name,
		Language:   a.language,
		TokenCount: a.tokens,
	}
}

func oversizeChunk(filePath string, span model.CodeSpan, tokens int) model.CodeChunk {
	return model.CodeChunk{
		FilePath:   filePath,
		Content:    span.Content,
		StartLine:  span.StartLine,
		EndLine:    span.EndLine,
		ByteStart:  span.ByteStart,
		ByteEnd:    span.ByteEnd,
		Kind:       span.Kind,
		Name:       span.Name,
		Language:   span.Language,
		TokenCount: tokens,
	}
}

// splitLargeSpan breaks a single oversize span into line groups, each
// kept under the soft budget, inheriting the parent span's kind/name.
// This is the only path that breaks a semantic unit, and only runs
// when split_large_units = true.
func splitLargeSpan(filePath string, span model.CodeSpan, counter Counter, budget TokenBudget) []model.CodeChunk {
	lines := strings.Split(span.Content, "\n")

	var chunks []model.CodeChunk
	var group []string
	groupTokens := 0
	lineStart := span.StartLine
	byteOffset := span.ByteStart

	flush := func(lineCount int) {
		content := strings.Join(group, "\n")
		chunks = append(chunks, model.CodeChunk{
			FilePath:   filePath,
			Content:    content,
			StartLine:  lineStart,
			EndLine:    lineStart + lineCount - 1,
			ByteStart:  byteOffset,
			ByteEnd:    byteOffset + len(content),
			Kind:       span.Kind,
			Name:       span.Name,
			Language:   span.Language,
			TokenCount: groupTokens,
		})
		byteOffset += len(content)
		lineStart += lineCount
		group = nil
		groupTokens = 0
	}

	for _, line := range lines {
		lineTokens := counter.Count(line + "\n")

		if groupTokens+lineTokens > budget.Soft && len(group) > 0 {
			flush(len(group))
		}

		group = append(group, line)
		groupTokens += lineTokens
	}

	if len(group) > 0 {
		content := strings.Join(group, "\n")
		chunks = append(chunks, model.CodeChunk{
			FilePath:   filePath,
			Content:    content,
			StartLine:  lineStart,
			EndLine:    span.EndLine,
			ByteStart:  byteOffset,
			ByteEnd:    span.ByteEnd,
			Kind:       span.Kind,
			Name:       span.Name,
			Language:   span.Language,
			TokenCount: groupTokens,
		})
	}

	return chunks
}
