package domain

import "time"

// Document represents an ingested SOP.
// The Content is the already-extracted plain text; it is immutable once chunked.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the source filename the text was extracted from.
	Filename string

	// Content is the full extracted text before chunking.
	Content string

	// UploadedAt is when the document was ingested.
	UploadedAt time.Time

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any
}

// Span is a half-open [Start, End) range of character offsets into a
// document's text. Offsets count runes, not bytes.
type Span struct {
	Start int
	End   int
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps returns true if the two spans share at least one character.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Chunk represents a retrievable unit within a document.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	// It is derived from the document ID and sequence so re-chunking is stable.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Sequence is the ordinal position within the document.
	Sequence int

	// Span locates the chunk within the document text.
	Span Span

	// Content is the text covered by Span.
	Content string
}
