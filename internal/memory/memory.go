// Package memory provides the semantic memory collaborator: an opaque
// annotation and search service the coordination core stores context in.
// The core does not specify embedding or indexing internals; any backend
// satisfying Store can drop in.
package memory

// Result is one ranked match from a query.
type Result struct {
	// ID is the stored document's identifier.
	ID string
	// Content is the stored text.
	Content string
	// Metadata is the key/value annotation stored with the content.
	Metadata map[string]string
	// Score ranks the match in (0, 1], higher is better.
	Score float64
}

// Store is the coordination core's view of semantic memory.
type Store interface {
	// Store saves content with metadata and returns the document id.
	Store(content string, metadata map[string]string) (string, error)
	// Query returns up to maxResults matches for the text, best first,
	// dropping results scoring below threshold.
	Query(text string, maxResults int, threshold float64) ([]Result, error)
	// Close releases the backend.
	Close() error
}
