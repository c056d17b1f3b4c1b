package domain

// Citation maps a passage of an assembled context back to its source chunk.
type Citation struct {
	// Number is the 1-based passage marker used in the context text.
	Number int

	DocumentID string
	Filename   string
	ChunkID    string
	Sequence   int
	Span       Span
	Score      float64

	// Truncated is set when the passage was cut to fit the budget.
	Truncated bool
}

// AssembledContext is the bounded text handed to the generation step.
type AssembledContext struct {
	// Text holds the passages, each preceded by a provenance header.
	Text string

	// Citations lists the included passages in order.
	Citations []Citation
}

// IsEmpty returns true if no passage was included.
func (c AssembledContext) IsEmpty() bool {
	return len(c.Citations) == 0
}
