// Package normalisers turns procedure files into plain text for ingestion.
// Each subpackage implements driven.TextExtractor for one file format;
// Registry picks the extractor for a filename by extension.
package normalisers
