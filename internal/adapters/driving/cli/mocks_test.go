package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/normalisers"
)

var testTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// mockIngestService records requests and answers from canned results.
type mockIngestService struct {
	mu        sync.Mutex
	requests  []driving.IngestRequest
	deleted   []string
	failOn    string
	reindexed []driving.IngestResult
	err       error
}

func (m *mockIngestService) Ingest(ctx context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	results := m.IngestBatch(ctx, []driving.IngestRequest{req})
	return &results[0], results[0].Err
}

func (m *mockIngestService) IngestBatch(_ context.Context, reqs []driving.IngestRequest) []driving.IngestResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]driving.IngestResult, len(reqs))
	for i, req := range reqs {
		m.requests = append(m.requests, req)
		results[i] = driving.IngestResult{
			DocumentID: "doc-" + req.Filename,
			Filename:   req.Filename,
			Chunks:     len(req.Content)/10 + 1,
		}
		if m.failOn != "" && strings.Contains(req.Content, m.failOn) {
			results[i] = driving.IngestResult{
				Filename: req.Filename,
				Err:      &domain.IngestionError{Filename: req.Filename, Err: domain.ErrPartialEmbedding},
			}
		}
	}
	return results
}

func (m *mockIngestService) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockIngestService) Reindex(_ context.Context) ([]driving.IngestResult, error) {
	return m.reindexed, m.err
}

// mockDocumentService serves a fixed corpus.
type mockDocumentService struct {
	documents []domain.Document
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) GetDetails(ctx context.Context, id string) (*driving.DocumentDetails, error) {
	doc, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &driving.DocumentDetails{
		ID:         doc.ID,
		Filename:   doc.Filename,
		ChunkCount: 2,
		Characters: len([]rune(doc.Content)),
		UploadedAt: doc.UploadedAt,
		Metadata:   map[string]string{"format": "markdown"},
	}, nil
}

func (m *mockDocumentService) Chunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	doc, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	runes := []rune(doc.Content)
	half := len(runes) / 2
	return []domain.Chunk{
		{DocumentID: id, Sequence: 0, Span: domain.Span{Start: 0, End: half}, Content: string(runes[:half])},
		{DocumentID: id, Sequence: 1, Span: domain.Span{Start: half, End: len(runes)}, Content: string(runes[half:])},
	}, nil
}

// mockRetrievalService returns a fixed retrieval and context.
type mockRetrievalService struct {
	retrieval domain.Retrieval
	assembled domain.AssembledContext
	lastQuery string
	lastOpts  domain.RetrievalOptions
}

func (m *mockRetrievalService) Retrieve(_ context.Context, query string, opts domain.RetrievalOptions) domain.Retrieval {
	m.lastQuery = query
	m.lastOpts = opts
	r := m.retrieval
	r.Query = query
	return r
}

func (m *mockRetrievalService) Context(
	ctx context.Context,
	query string,
	opts domain.RetrievalOptions,
) (domain.Retrieval, domain.AssembledContext) {
	return m.Retrieve(ctx, query, opts), m.assembled
}

// mockAnswerService returns a fixed answer.
type mockAnswerService struct {
	answer   *domain.Answer
	err      error
	lastOpts domain.RetrievalOptions
}

func (m *mockAnswerService) Ask(_ context.Context, query string, opts domain.RetrievalOptions) (*domain.Answer, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	a := *m.answer
	a.Query = query
	return &a, nil
}

// mockAnalysisService records the incident and returns a fixed record.
type mockAnalysisService struct {
	record   *domain.DeviationRecord
	err      error
	incident string
	entry    *domain.DeviationEntry
}

func (m *mockAnalysisService) Analyze(_ context.Context, incident string) (*domain.DeviationRecord, error) {
	m.incident = incident
	if m.err != nil {
		return nil, m.err
	}
	r := *m.record
	r.Description = incident
	return &r, nil
}

func (m *mockAnalysisService) Record(_ context.Context, entry domain.DeviationEntry) (*domain.DeviationRecord, error) {
	m.entry = &entry
	if m.err != nil {
		return nil, m.err
	}
	r := *m.record
	r.Description = entry.Incident
	r.Severity = entry.Severity
	r.Category = entry.Category
	return &r, nil
}

// mockTrendService returns a fixed report and alerts.
type mockTrendService struct {
	report     *domain.TrendReport
	alerts     []domain.DeviationAlert
	err        error
	lastWindow time.Duration
	lastLimit  int
}

func (m *mockTrendService) Trends(_ context.Context, window time.Duration) (*domain.TrendReport, error) {
	m.lastWindow = window
	return m.report, m.err
}

func (m *mockTrendService) Alerts(_ context.Context, window time.Duration, limit int) ([]domain.DeviationAlert, error) {
	m.lastWindow = window
	m.lastLimit = limit
	return m.alerts, m.err
}

// mockRetrainingService returns a fixed plan and matches.
type mockRetrainingService struct {
	plan       *domain.RetrainingPlan
	matches    []domain.ScoredDeviation
	err        error
	lastQuery  string
	lastWindow time.Duration
	lastK      int
}

func (m *mockRetrainingService) Recall(_ context.Context, query string, window time.Duration, k int) ([]domain.ScoredDeviation, error) {
	m.lastQuery = query
	m.lastWindow = window
	m.lastK = k
	return m.matches, m.err
}

func (m *mockRetrainingService) Suggest(_ context.Context, window time.Duration) (*domain.RetrainingPlan, error) {
	m.lastWindow = window
	if m.err != nil {
		return nil, m.err
	}
	return m.plan, nil
}

// mockSettingsService keeps settings in memory.
type mockSettingsService struct {
	settings domain.Settings
	values   map[string]string
	err      error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultSettings(), values: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.Settings) error {
	m.settings = *settings
	return m.err
}

func (m *mockSettingsService) Set(key, value string) error {
	if key == "retrieval.k" && value == "0" {
		return &domain.ConfigurationError{Field: key, Err: domain.ErrInvalidInput}
	}
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) Keys() []string {
	return []string{"chunker.chunk_size", "retrieval.k"}
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error {
	if provider.RequiresAPIKey() && apiKey == "" {
		return &domain.ConfigurationError{Field: "embedding.api_key", Err: domain.ErrInvalidInput}
	}
	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	if d, ok := domain.EmbeddingDimensions()[model]; ok {
		m.settings.Embedding.Dimensions = d
	}
	return nil
}

func (m *mockSettingsService) Validate() error {
	if m.err != nil {
		return m.err
	}
	return m.settings.Validate()
}

func (m *mockSettingsService) GetPipelineConfig() domain.PipelineConfig {
	return m.settings.PipelineConfig()
}

// testServices bundles the mocks installed by setupTestServices.
type testServices struct {
	ingest     *mockIngestService
	documents  *mockDocumentService
	retrieval  *mockRetrievalService
	answer     *mockAnswerService
	analysis   *mockAnalysisService
	trends     *mockTrendService
	retraining *mockRetrainingService
	settings   *mockSettingsService
}

func glovesChunk() domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:         "doc-1:0",
			DocumentID: "doc-1",
			Sequence:   0,
			Span:       domain.Span{Start: 0, End: 60},
			Content:    "Sterile gloves must be changed every 30 minutes in grade A.",
		},
		Source: "sop-014.md",
		Score:  0.82,
	}
}

func glovesCitation() domain.Citation {
	return domain.Citation{
		Number:     1,
		DocumentID: "doc-1",
		Filename:   "sop-014.md",
		ChunkID:    "doc-1:0",
		Span:       domain.Span{Start: 0, End: 60},
		Score:      0.82,
	}
}

// setupTestServices installs mock services and returns them with a cleanup
// that restores the previous state.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingest: &mockIngestService{},
		documents: &mockDocumentService{documents: []domain.Document{
			{ID: "doc-1", Filename: "sop-014.md", Content: "# Gowning\n\nGloves.", UploadedAt: testTime},
			{ID: "doc-2", Filename: "sop-020.txt", Content: "Cleaning.", UploadedAt: testTime},
		}},
		retrieval: &mockRetrievalService{
			retrieval: domain.Retrieval{Results: []domain.ScoredChunk{glovesChunk()}},
			assembled: domain.AssembledContext{
				Text:      "[1] sop-014.md (chunk 0)\nSterile gloves must be changed every 30 minutes in grade A.",
				Citations: []domain.Citation{glovesCitation()},
			},
		},
		answer: &mockAnswerService{answer: &domain.Answer{
			Text:       "Change gloves every 30 minutes [1].",
			Sufficient: true,
			Citations:  []domain.Citation{glovesCitation()},
		}},
		analysis: &mockAnalysisService{record: &domain.DeviationRecord{
			ID:         "dev-1",
			Severity:   domain.SeverityMajor,
			Category:   "aseptic technique",
			OccurredAt: testTime,
			Analysis: domain.DeviationAnalysis{
				IsDeviation:         true,
				DeviationType:       "procedural",
				SeverityLevel:       domain.SeverityMajor,
				DeviationCategory:   "aseptic technique",
				ImmediateActions:    []string{"Quarantine the batch"},
				RootCauseCategories: []string{"training"},
				TrainingImplications: domain.TrainingImplications{
					NeedsRetraining: true,
					AffectedRoles:   []string{"operator"},
					TrainingUrgency: "high",
				},
				ConfidenceScore: 0.8,
			},
			Citations: []domain.Citation{glovesCitation()},
		}},
		trends: &mockTrendService{
			report: &domain.TrendReport{
				Since:           testTime.Add(-30 * 24 * time.Hour),
				Until:           testTime,
				Total:           2,
				BySeverity:      map[domain.Severity]int{domain.SeverityMajor: 1, domain.SeverityMinor: 1},
				ByCategory:      map[string]int{"aseptic technique": 2},
				TopCategories:   []domain.CategoryCount{{Category: "aseptic technique", Count: 2}},
				RootCauses:      map[string]int{"training": 2},
				NeedsRetraining: 1,
				ComplianceScore: 93,
			},
			alerts: []domain.DeviationAlert{{
				DeviationID:      "dev-7",
				Severity:         domain.SeverityCritical,
				Category:         "sterility",
				Summary:          "Filter integrity test skipped.",
				ImmediateActions: []string{"Quarantine the batch"},
				OccurredAt:       testTime,
			}},
		},
		retraining: &mockRetrainingService{
			plan: &domain.RetrainingPlan{
				ID:            "TRAIN-20260302-093000",
				GeneratedAt:   testTime,
				Since:         testTime.Add(-30 * 24 * time.Hour),
				DeviationIDs:  []string{"dev-1", "dev-7"},
				AffectedRoles: []string{"operators", "supervisors"},
				Suggestions:   "Program 1: aseptic gowning refresher [1]",
				Citations:     []domain.Citation{glovesCitation()},
			},
			matches: []domain.ScoredDeviation{{
				Record: domain.DeviationRecord{
					ID:          "dev-1",
					Description: "Operator skipped the glove change",
					Severity:    domain.SeverityMajor,
					Category:    "aseptic technique",
					OccurredAt:  testTime,
				},
				Score: 0.91,
			}},
		},
		settings: newMockSettingsService(),
	}

	prevBootstrap := bootstrap
	bootstrap = nil
	SetServices(&Services{
		Settings:   ts.settings,
		Ingest:     ts.ingest,
		Documents:  ts.documents,
		Retrieval:  ts.retrieval,
		Answer:     ts.answer,
		Analysis:   ts.analysis,
		Trends:     ts.trends,
		Retraining: ts.retraining,
		Extractor:  testExtractor(),
	})

	return ts, func() {
		SetServices(nil)
		bootstrap = prevBootstrap
	}
}

// execute runs the root command with args and returns everything printed.
// Flags are reset afterwards so tests do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func testExtractor() Extractor {
	return normalisers.DefaultRegistry()
}
