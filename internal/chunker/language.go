package chunker

import (
	"path/filepath"
	"strings"
)

// extensionLanguages maps a lowercased file extension to the language
// tag ExtractSpans/FallbackSpans expect.
var extensionLanguages = map[string]string{
	".java":  "java",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".go":    "go",
	".py":    "python",
}

// DetectLanguage maps a file path's extension to a language tag. It
// returns "" when the extension is unrecognized; callers pass that
// straight through to Chunk, which falls back to line-based spans.
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	return extensionLanguages[ext]
}
