// Package services holds the retrieval pipeline: ingestion, the resilient
// embedder, retrieval, context assembly, answering, deviation analysis and
// trends. It talks to infrastructure only through the driven ports.
package services
