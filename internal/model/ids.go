// Package model holds the entities of the ingestion core: tenants,
// project branches, indexed files, chunk metadata, jobs, queue rows,
// and the in-flight chunk/match types that flow between components.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ChunkNamespace is the fixed UUID namespace chunk IDs are derived
// from. Changing it would silently invalidate every previously
// computed chunk ID, so it is never configurable.
var ChunkNamespace = uuid.MustParse("6f6e6465-7465-7269-6576-657220626173")

// ChunkID derives the deterministic chunk identifier described by the
// data model: a UUIDv5 over the chunk's full identity tuple. Equal
// inputs always produce the same ID; changing any component changes
// the ID.
func ChunkID(repositoryID, branch, filePath string, generation int64, byteStart, byteEnd int) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%s:%d:%d:%d", repositoryID, branch, filePath, generation, byteStart, byteEnd)
	return uuid.NewSHA1(ChunkNamespace, []byte(name))
}

// ContentHash returns the hex-encoded SHA-256 digest of file bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
