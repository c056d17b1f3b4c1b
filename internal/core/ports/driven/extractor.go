package driven

import "context"

// Extraction is the readable text pulled out of a file.
type Extraction struct {
	// Title is a human-readable title, from the file itself when it has one.
	Title string

	// Text is the plain text to ingest.
	Text string

	// Metadata carries format-specific facts such as the format name.
	Metadata map[string]any
}

// TextExtractor turns a file's bytes into plain text ready for ingestion.
type TextExtractor interface {
	// Name returns the extractor name for logging.
	Name() string

	// Extensions returns the lower-case file extensions handled, with dot.
	Extensions() []string

	// Priority breaks ties when two extractors claim an extension. Higher wins.
	Priority() int

	// Extract converts content read from filename into text.
	Extract(ctx context.Context, filename string, content []byte) (*Extraction, error)
}
