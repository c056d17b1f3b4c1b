// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingService: Turns text into fixed-dimension vectors
//   - VectorIndex: Stores vector records and answers similarity queries
//   - DocumentStore: Document and chunk persistence
//   - PostProcessorPipeline: Splits documents into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - GenerationService: Language model calls. Without it, answers and
//     deviation analysis are disabled; retrieval still works.
//   - DeviationStore: Deviation record persistence. Without it, analyses
//     are returned but not recorded for trend reporting.
//   - TextExtractor: Turns files into plain text for ingestion.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
