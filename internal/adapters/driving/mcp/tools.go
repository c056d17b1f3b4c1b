package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query       string   `json:"query" jsonschema:"the question or incident to find procedure passages for"`
	K           int      `json:"k,omitempty" jsonschema:"maximum number of passages (default from configuration, at most 100)"`
	MinScore    *float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"restrict retrieval to these documents"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Context   string           `json:"context"`
	Passages  []PassageOutput  `json:"passages"`
	Citations []CitationOutput `json:"citations"`
	Failure   string           `json:"failure,omitempty"`
}

// PassageOutput is a single retrieved chunk.
type PassageOutput struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Sequence   int     `json:"sequence"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// CitationOutput identifies a passage in an assembled context.
type CitationOutput struct {
	Number     int     `json:"number"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Sequence   int     `json:"sequence"`
	Score      float64 `json:"score"`
	Truncated  bool    `json:"truncated,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the procedures"`
	K        int    `json:"k,omitempty" jsonschema:"maximum number of passages to ground the answer on, at most 100"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer     string           `json:"answer"`
	Sufficient bool             `json:"sufficient"`
	Citations  []CitationOutput `json:"citations"`
	Failure    string           `json:"failure,omitempty"`
}

// IngestTextInput is the input schema for the ingest_text tool.
type IngestTextInput struct {
	Filename string `json:"filename" jsonschema:"name of the source document; re-using a name replaces that document"`
	Content  string `json:"content" jsonschema:"the extracted document text"`
}

// IngestTextOutput is the output schema for the ingest_text tool.
type IngestTextOutput struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Replaced   bool   `json:"replaced"`
}

// DeleteDocumentInput is the input schema for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the document to remove"`
}

// DeleteDocumentOutput is the output schema for the delete_document tool.
type DeleteDocumentOutput struct {
	Deleted bool `json:"deleted"`
}

// AnalyzeIncidentInput is the input schema for the analyze_incident tool.
type AnalyzeIncidentInput struct {
	Incident string `json:"incident" jsonschema:"description of what happened"`
}

// AnalyzeIncidentOutput is the output schema for the analyze_incident tool.
type AnalyzeIncidentOutput struct {
	DeviationID string                   `json:"deviation_id"`
	Severity    string                   `json:"severity"`
	Category    string                   `json:"category"`
	Analysis    domain.DeviationAnalysis `json:"analysis"`
	Citations   []CitationOutput         `json:"citations"`
}

// RecordDeviationInput is the input schema for the record_deviation tool.
type RecordDeviationInput struct {
	Incident string `json:"incident" jsonschema:"description of what happened"`
	Severity string `json:"severity,omitempty" jsonschema:"critical, major or minor (default major)"`
	Category string `json:"category,omitempty" jsonschema:"deviation category (default process)"`
}

// RetrainingInput is the input schema for the retraining_suggestions tool.
type RetrainingInput struct {
	Days int `json:"days,omitempty" jsonschema:"how many days of deviations to consider (default 30)"`
}

// RetrainingOutput is the output schema for the retraining_suggestions tool.
type RetrainingOutput struct {
	PlanID        string           `json:"plan_id"`
	Since         time.Time        `json:"since"`
	DeviationIDs  []string         `json:"deviation_ids"`
	AffectedRoles []string         `json:"affected_roles"`
	Suggestions   string           `json:"suggestions"`
	Citations     []CitationOutput `json:"citations"`
}

// RecallInput is the input schema for the recall_deviations tool.
type RecallInput struct {
	Query string `json:"query" jsonschema:"incident description to find similar recorded deviations for"`
	Days  int    `json:"days,omitempty" jsonschema:"how many days of deviations to search (default 90)"`
	K     int    `json:"k,omitempty" jsonschema:"maximum deviations to return (default 3, at most 100)"`
}

// RecallOutput is the output schema for the recall_deviations tool.
type RecallOutput struct {
	Matches []RecalledDeviation `json:"matches"`
}

// RecalledDeviation is one recorded deviation similar to the query.
type RecalledDeviation struct {
	DeviationID string    `json:"deviation_id"`
	Score       float64   `json:"score"`
	Severity    string    `json:"severity"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	defaultRetrainingDays = 30
	defaultRecallDays     = 90
)

// registerTools registers the tools whose ports are set.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the most relevant SOP passages and an assembled, cited context for a query",
	}, s.handleRetrieve)

	if s.ports.Answer != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question strictly from the ingested procedures, with citations",
		}, s.handleAsk)
	}

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_text",
			Description: "Chunk, embed and index an already-extracted document",
		}, s.handleIngestText)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "delete_document",
			Description: "Remove a document and all its passages from the index",
		}, s.handleDeleteDocument)
	}

	if s.ports.Analysis != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "analyze_incident",
			Description: "Assess an incident against the procedures and record it as a deviation",
		}, s.handleAnalyzeIncident)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "record_deviation",
			Description: "Record a deviation with a given severity and category, without a language model",
		}, s.handleRecordDeviation)
	}

	if s.ports.Retraining != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "retraining_suggestions",
			Description: "Suggest retraining programs grounded in recent deviations and the procedures",
		}, s.handleRetraining)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "recall_deviations",
			Description: "Find recorded deviations similar to an incident description",
		}, s.handleRecallDeviations)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	opts := domain.RetrievalOptions{
		K:           input.K,
		MinScore:    input.MinScore,
		DocumentIDs: input.DocumentIDs,
	}

	retrieval, assembled := s.ports.Retrieval.Context(ctx, input.Query, opts)

	output := RetrieveOutput{
		Context:   assembled.Text,
		Passages:  make([]PassageOutput, len(retrieval.Results)),
		Citations: citations(assembled.Citations),
		Failure:   failure(retrieval.Failure),
	}
	for i, r := range retrieval.Results {
		output.Passages[i] = PassageOutput{
			DocumentID: r.Chunk.DocumentID,
			Source:     r.Source,
			Sequence:   r.Chunk.Sequence,
			Score:      r.Score,
			Content:    r.Chunk.Content,
		}
	}

	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if s.ports.Answer == nil {
		return nil, AskOutput{}, errToolUnavailable
	}

	answer, err := s.ports.Answer.Ask(ctx, input.Question, domain.RetrievalOptions{K: input.K})
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		Answer:     answer.Text,
		Sufficient: answer.Sufficient,
		Citations:  citations(answer.Citations),
		Failure:    failure(answer.Failure),
	}, nil
}

// handleIngestText handles the ingest_text tool invocation.
func (s *Server) handleIngestText(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestTextInput,
) (*mcp.CallToolResult, IngestTextOutput, error) {
	if s.ports.Ingest == nil {
		return nil, IngestTextOutput{}, errToolUnavailable
	}

	res, err := s.ports.Ingest.Ingest(ctx, driving.IngestRequest{
		Filename: input.Filename,
		Content:  input.Content,
		Metadata: map[string]any{"origin": "mcp"},
	})
	if err != nil {
		return nil, IngestTextOutput{}, err
	}

	return nil, IngestTextOutput{
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Replaced:   res.Replaced,
	}, nil
}

// handleDeleteDocument handles the delete_document tool invocation.
func (s *Server) handleDeleteDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	if s.ports.Ingest == nil {
		return nil, DeleteDocumentOutput{}, errToolUnavailable
	}
	if input.DocumentID == "" {
		return nil, DeleteDocumentOutput{}, fmt.Errorf("document_id is required: %w", domain.ErrInvalidInput)
	}

	if err := s.ports.Ingest.Delete(ctx, input.DocumentID); err != nil {
		return nil, DeleteDocumentOutput{}, err
	}
	return nil, DeleteDocumentOutput{Deleted: true}, nil
}

// handleAnalyzeIncident handles the analyze_incident tool invocation.
func (s *Server) handleAnalyzeIncident(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeIncidentInput,
) (*mcp.CallToolResult, AnalyzeIncidentOutput, error) {
	if s.ports.Analysis == nil {
		return nil, AnalyzeIncidentOutput{}, errToolUnavailable
	}
	if input.Incident == "" {
		return nil, AnalyzeIncidentOutput{}, fmt.Errorf("incident is required: %w", domain.ErrInvalidInput)
	}

	record, err := s.ports.Analysis.Analyze(ctx, input.Incident)
	if err != nil {
		return nil, AnalyzeIncidentOutput{}, err
	}

	return nil, analysisOutput(record), nil
}

// handleRecordDeviation handles the record_deviation tool invocation.
func (s *Server) handleRecordDeviation(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RecordDeviationInput,
) (*mcp.CallToolResult, AnalyzeIncidentOutput, error) {
	if s.ports.Analysis == nil {
		return nil, AnalyzeIncidentOutput{}, errToolUnavailable
	}

	record, err := s.ports.Analysis.Record(ctx, domain.DeviationEntry{
		Incident: input.Incident,
		Severity: domain.Severity(input.Severity),
		Category: input.Category,
	})
	if err != nil {
		return nil, AnalyzeIncidentOutput{}, err
	}
	return nil, analysisOutput(record), nil
}

// handleRetraining handles the retraining_suggestions tool invocation.
func (s *Server) handleRetraining(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrainingInput,
) (*mcp.CallToolResult, RetrainingOutput, error) {
	if s.ports.Retraining == nil {
		return nil, RetrainingOutput{}, errToolUnavailable
	}
	window, err := dayWindow(input.Days, defaultRetrainingDays)
	if err != nil {
		return nil, RetrainingOutput{}, err
	}

	plan, err := s.ports.Retraining.Suggest(ctx, window)
	if err != nil {
		return nil, RetrainingOutput{}, err
	}

	return nil, RetrainingOutput{
		PlanID:        plan.ID,
		Since:         plan.Since,
		DeviationIDs:  plan.DeviationIDs,
		AffectedRoles: plan.AffectedRoles,
		Suggestions:   plan.Suggestions,
		Citations:     citations(plan.Citations),
	}, nil
}

// handleRecallDeviations handles the recall_deviations tool invocation.
func (s *Server) handleRecallDeviations(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RecallInput,
) (*mcp.CallToolResult, RecallOutput, error) {
	if s.ports.Retraining == nil {
		return nil, RecallOutput{}, errToolUnavailable
	}
	if input.Query == "" {
		return nil, RecallOutput{}, fmt.Errorf("query is required: %w", domain.ErrInvalidInput)
	}
	window, err := dayWindow(input.Days, defaultRecallDays)
	if err != nil {
		return nil, RecallOutput{}, err
	}

	matches, err := s.ports.Retraining.Recall(ctx, input.Query, window, min(input.K, domain.MaxRetrievalK))
	if err != nil {
		return nil, RecallOutput{}, err
	}

	output := RecallOutput{Matches: make([]RecalledDeviation, len(matches))}
	for i, m := range matches {
		output.Matches[i] = RecalledDeviation{
			DeviationID: m.Record.ID,
			Score:       m.Score,
			Severity:    string(m.Record.Severity),
			Category:    m.Record.Category,
			Description: m.Record.Description,
			OccurredAt:  m.Record.OccurredAt,
		}
	}
	return nil, output, nil
}

func analysisOutput(record *domain.DeviationRecord) AnalyzeIncidentOutput {
	return AnalyzeIncidentOutput{
		DeviationID: record.ID,
		Severity:    string(record.Severity),
		Category:    record.Category,
		Analysis:    record.Analysis,
		Citations:   citations(record.Citations),
	}
}

// dayWindow turns a day count into a window; zero means def.
func dayWindow(n, def int) (time.Duration, error) {
	if n == 0 {
		n = def
	}
	if n < 0 {
		return 0, fmt.Errorf("days must be positive: %w", domain.ErrInvalidInput)
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

func citations(in []domain.Citation) []CitationOutput {
	out := make([]CitationOutput, len(in))
	for i, c := range in {
		out[i] = CitationOutput{
			Number:     c.Number,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Sequence:   c.Sequence,
			Score:      c.Score,
			Truncated:  c.Truncated,
		}
	}
	return out
}

func failure(f *domain.RetrievalFailure) string {
	if f == nil {
		return ""
	}
	return f.Error()
}
