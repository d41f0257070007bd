package chunker

import (
	"strings"

	"github.com/codetriever/ingestcore/internal/model"
)

// FallbackSpans splits text on line boundaries; every line becomes
// its own span with accurate byte offsets. Used whenever no syntax
// grammar is registered for a language, or when AST extraction finds
// no semantic nodes at all.
func FallbackSpans(text, language string) []model.CodeSpan {
	if text == "" {
		return nil
	}

	lines := splitLinesKeepEmpty(text)
	spans := make([]model.CodeSpan, 0, len(lines))

	byteOffset := 0
	for i, line := range lines {
		lineWithBreak := line
		isLast := i == len(lines)-1
		if !isLast {
			lineWithBreak = line + "\n"
		}

		start := byteOffset
		end := byteOffset + len(lineWithBreak)

		if end > start {
			spans = append(spans, model.CodeSpan{
				Content:   lineWithBreak,
				StartLine: i + 1,
				EndLine:   i + 1,
				ByteStart: start,
				ByteEnd:   end,
				Language:  language,
			})
		}

		byteOffset = end
	}

	return spans
}

func splitLinesKeepEmpty(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
