package domain

import "fmt"

// Document is a unit of ingestion: plain text already extracted upstream,
// with its title, origin and free-form metadata.
type Document struct {
	// ID is the stable identifier. Derived from Title and Source when not
	// supplied, so ingesting the same document twice is an upsert.
	ID string

	// Title is the human-readable title.
	Title string

	// Text is the full plain text before chunking.
	Text string

	// Source is the origin of the document (file path, URL, etc).
	Source string

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any
}

// Chunk is a bounded, possibly overlapping passage of a document's text.
// It is the unit of embedding and retrieval.
type Chunk struct {
	// ID is derived from DocumentID and Index.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Index is the ordinal position within the document.
	Index int

	// Text is the passage, including the overlap carried from the
	// previous chunk.
	Text string

	// Start and End are rune offsets of Text within the document text.
	Start int
	End   int

	// Source is copied from the parent Document.
	Source string

	// Page is the page number reported by the upstream extractor, or 0.
	Page int

	// Vector is the L2-normalised embedding. Nil until embedded.
	Vector []float32

	// Seq is the insertion sequence assigned by the index on first upsert.
	Seq int64
}

// IngestRequest is the input of an ingestion call.
type IngestRequest struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestResult reports what an ingestion call wrote.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// PageOf returns the page number stored in metadata under "page".
func PageOf(metadata map[string]any) int {
	switch v := metadata["page"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// ValidateChunkSet checks that chunks form the complete, ordered chunk set
// of documentID: every chunk belongs to it and chunk i has index i.
func ValidateChunkSet(documentID string, chunks []Chunk) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	for i := range chunks {
		if chunks[i].DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				ErrInvalidInput, chunks[i].ID, chunks[i].DocumentID, documentID)
		}
		if chunks[i].Index != i {
			return fmt.Errorf("%w: chunk %s has index %d at position %d",
				ErrInvalidInput, chunks[i].ID, chunks[i].Index, i)
		}
	}
	return nil
}
