package embedpool

import "github.com/codetriever/ingestcore/internal/model"

// contentHash keys the optional embedding cache. It reuses the same
// SHA-256 content hash used for file-generation bookkeeping so a
// byte-identical chunk anywhere in the system maps to one cache
// entry, regardless of which file or repository it came from.
func contentHash(text string) string {
	return model.ContentHash([]byte(text))
}
