package mcp

import (
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

// Ports are the services behind the MCP tools and resources. Only
// Retrieval is required; a nil port hides the tools and resources it backs.
type Ports struct {
	Retrieval  driving.RetrievalService
	Answer     driving.AnswerService
	Ingest     driving.IngestService
	Documents  driving.DocumentService
	Analysis   driving.AnalysisService
	Trends     driving.TrendService
	Retraining driving.RetrainingService
}

// Validate reports a missing required port.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
