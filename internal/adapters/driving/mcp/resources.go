package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

const (
	uriScheme        = "sopctx://"
	documentsURI     = uriScheme + "documents"
	documentPrefix   = documentsURI + "/"
	trendsURI        = uriScheme + "trends"
	trendsPrefix     = trendsURI + "/"
	defaultTrendDays = 30
	alertsURI        = uriScheme + "alerts"
	alertDays        = 7

	mimeJSON = "application/json"
	mimeText = "text/plain"
)

// registerResources registers the resources whose ports are set. The
// document listing is always present so clients can discover it.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "Ingested procedure documents",
		MIMEType:    mimeJSON,
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentPrefix + "{documentId}",
		Name:        "document-content",
		Description: "Extracted text of one document",
		MIMEType:    mimeText,
	}, s.handleDocumentContentResource)

	if s.ports.Trends == nil {
		return
	}
	s.server.AddResource(&mcp.Resource{
		URI:         trendsURI,
		Name:        "deviation-trends",
		Description: fmt.Sprintf("Deviation trends over the last %d days", defaultTrendDays),
		MIMEType:    mimeJSON,
	}, s.handleTrendsResource)
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: trendsPrefix + "{days}",
		Name:        "deviation-trends-window",
		Description: "Deviation trends over the given number of days",
		MIMEType:    mimeJSON,
	}, s.handleTrendsResource)
	s.server.AddResource(&mcp.Resource{
		URI:         alertsURI,
		Name:        "deviation-alerts",
		Description: fmt.Sprintf("Critical and major deviations from the last %d days", alertDays),
		MIMEType:    mimeJSON,
	}, s.handleAlertsResource)
}

// documentInfo is one entry of the documents listing.
type documentInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	URI        string    `json:"uri"`
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos := []documentInfo{}
	if s.ports.Documents != nil {
		docs, err := s.ports.Documents.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		for i := range docs {
			infos = append(infos, documentInfo{
				ID:         docs[i].ID,
				Filename:   docs[i].Filename,
				UploadedAt: docs[i].UploadedAt,
				URI:        documentPrefix + docs[i].ID,
			})
		}
	}
	return jsonContents(req.Params.URI, infos)
}

func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if s.ports.Documents == nil || docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Documents.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return textContents(req.Params.URI, mimeText, doc.Content), nil
}

func (s *Server) handleTrendsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	days, ok := trendDays(req.Params.URI)
	if s.ports.Trends == nil || !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	report, err := s.ports.Trends.Trends(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("computing trends: %w", err)
	}

	return jsonContents(req.Params.URI, report)
}

func (s *Server) handleAlertsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Trends == nil || req.Params.URI != alertsURI {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	alerts, err := s.ports.Trends.Alerts(ctx, alertDays*24*time.Hour, 0)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	if alerts == nil {
		alerts = []domain.DeviationAlert{}
	}
	return jsonContents(req.Params.URI, alerts)
}

// extractDocumentID returns the ID in sopctx://documents/{documentId}.
func extractDocumentID(uri string) string {
	id, ok := strings.CutPrefix(uri, documentPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// trendDays returns the window of sopctx://trends or sopctx://trends/{days}.
func trendDays(uri string) (int, bool) {
	if uri == trendsURI {
		return defaultTrendDays, true
	}
	raw, ok := strings.CutPrefix(uri, trendsPrefix)
	if !ok {
		return 0, false
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, false
	}
	return days, true
}

func jsonContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return textContents(uri, mimeJSON, string(data)), nil
}

func textContents(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
	}
}
