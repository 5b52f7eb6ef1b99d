package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results []domain.SearchResult
	ingest  *domain.IngestResult
	health  domain.HealthStatus
	err     error

	lastQuery  domain.QueryRequest
	lastIngest domain.IngestRequest
	deleted    []string
}

func (m *mockRetrievalService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastIngest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.ingest, nil
}

func (m *mockRetrievalService) Query(_ context.Context, req domain.QueryRequest) ([]domain.SearchResult, error) {
	m.lastQuery = req
	return m.results, m.err
}

func (m *mockRetrievalService) BuildContext(_ context.Context, req domain.QueryRequest) (*domain.ContextPayload, error) {
	m.lastQuery = req
	if m.err != nil {
		return nil, m.err
	}
	texts := make([]string, len(m.results))
	for i, r := range m.results {
		texts[i] = r.Text
	}
	return &domain.ContextPayload{Query: req.Query, Context: texts, Sources: m.results}, nil
}

func (m *mockRetrievalService) Delete(_ context.Context, documentID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockRetrievalService) Health(_ context.Context) domain.HealthStatus {
	return m.health
}
