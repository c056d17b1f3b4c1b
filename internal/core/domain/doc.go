// Package domain defines the core business entities for sopctx.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested SOP with its extracted text
//   - Chunk: A contiguous span of a document used as the unit of retrieval
//   - VectorRecord: The embedding of one chunk plus its provenance
//   - ScoredChunk / Retrieval: Transient query-time results
//   - AssembledContext / Citation: The bounded context handed to generation
//   - DeviationRecord: Incident analyses consumed by trend reporting
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
