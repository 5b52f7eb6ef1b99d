// Package identity derives the stable identifiers that make ingestion idempotent.
package identity

import (
	"strconv"

	"github.com/google/uuid"
)

// namespace scopes every derived id to this application.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sercha.dev/rag"))

// DocumentID derives a document id from its title and source.
// The same pair always yields the same id.
func DocumentID(title, source string) string {
	return uuid.NewSHA1(namespace, []byte(title+"\x00"+source)).String()
}

// ChunkID derives a chunk id from its document id and position.
// The result is a UUID, which every supported vector store accepts as a key.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(namespace, []byte(documentID+"#"+strconv.Itoa(index))).String()
}
