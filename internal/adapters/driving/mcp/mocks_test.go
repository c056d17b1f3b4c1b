package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	retrieval domain.Retrieval
	assembled domain.AssembledContext
	lastQuery string
	lastOpts  domain.RetrievalOptions
}

func (m *mockRetrievalService) Retrieve(_ context.Context, query string, opts domain.RetrievalOptions) domain.Retrieval {
	m.lastQuery = query
	m.lastOpts = opts
	return m.retrieval
}

func (m *mockRetrievalService) Context(
	ctx context.Context,
	query string,
	opts domain.RetrievalOptions,
) (domain.Retrieval, domain.AssembledContext) {
	return m.Retrieve(ctx, query, opts), m.assembled
}

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer *domain.Answer
	err    error
}

func (m *mockAnswerService) Ask(_ context.Context, _ string, _ domain.RetrievalOptions) (*domain.Answer, error) {
	return m.answer, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result   *driving.IngestResult
	err      error
	requests []driving.IngestRequest
	deleted  []string
}

func (m *mockIngestService) Ingest(_ context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	m.requests = append(m.requests, req)
	return m.result, m.err
}

func (m *mockIngestService) IngestBatch(_ context.Context, _ []driving.IngestRequest) []driving.IngestResult {
	return nil
}

func (m *mockIngestService) Delete(_ context.Context, documentID string) error {
	m.deleted = append(m.deleted, documentID)
	return m.err
}

func (m *mockIngestService) Reindex(_ context.Context) ([]driving.IngestResult, error) {
	return nil, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	details   *driving.DocumentDetails
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) GetDetails(_ context.Context, _ string) (*driving.DocumentDetails, error) {
	return m.details, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

// mockAnalysisService is a mock implementation of driving.AnalysisService.
type mockAnalysisService struct {
	record   *domain.DeviationRecord
	err      error
	incident string
	entry    domain.DeviationEntry
}

func (m *mockAnalysisService) Analyze(_ context.Context, incident string) (*domain.DeviationRecord, error) {
	m.incident = incident
	return m.record, m.err
}

func (m *mockAnalysisService) Record(_ context.Context, entry domain.DeviationEntry) (*domain.DeviationRecord, error) {
	m.entry = entry
	return m.record, m.err
}

// mockTrendService is a mock implementation of driving.TrendService.
type mockTrendService struct {
	report *domain.TrendReport
	alerts []domain.DeviationAlert
	err    error
	window time.Duration
	limit  int
}

func (m *mockTrendService) Trends(_ context.Context, window time.Duration) (*domain.TrendReport, error) {
	m.window = window
	return m.report, m.err
}

func (m *mockTrendService) Alerts(_ context.Context, window time.Duration, limit int) ([]domain.DeviationAlert, error) {
	m.window = window
	m.limit = limit
	return m.alerts, m.err
}

// mockRetrainingService is a mock implementation of driving.RetrainingService.
type mockRetrainingService struct {
	plan    *domain.RetrainingPlan
	matches []domain.ScoredDeviation
	err     error
	query   string
	window  time.Duration
	k       int
}

func (m *mockRetrainingService) Recall(_ context.Context, query string, window time.Duration, k int) ([]domain.ScoredDeviation, error) {
	m.query = query
	m.window = window
	m.k = k
	return m.matches, m.err
}

func (m *mockRetrainingService) Suggest(_ context.Context, window time.Duration) (*domain.RetrainingPlan, error) {
	m.window = window
	return m.plan, m.err
}
