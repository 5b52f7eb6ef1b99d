package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockRetrievalService implements driving.RetrievalService for CLI tests.
type mockRetrievalService struct {
	mu sync.Mutex

	results []domain.SearchResult
	health  domain.HealthStatus
	err     error

	queries []domain.QueryRequest
	ingests []domain.IngestRequest
	deleted []string
}

func newMockRetrieval() *mockRetrievalService {
	return &mockRetrievalService{
		results: []domain.SearchResult{
			{ChunkID: "security#0", DocumentID: "security", Source: "/docs/security-policy.md", Text: "보안 정책은 모든 임직원에게 적용됩니다.", Score: 0.82},
			{ChunkID: "onboarding#1", DocumentID: "onboarding", ChunkIndex: 1, Source: "/docs/onboarding.md", Text: "신입 사원은 첫 주에 보안 교육을 이수합니다.", Score: 0.41},
		},
		health: domain.HealthStatus{
			Status: "ok", Embedder: true, Index: true,
			Backend: "hashing-multilingual", IndexBackend: "memory",
		},
	}
}

func (m *mockRetrievalService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.ingests = append(m.ingests, req)
	id := req.ID
	if id == "" {
		id = req.Title
	}
	return &domain.IngestResult{DocumentID: id, ChunkCount: 1}, nil
}

func (m *mockRetrievalService) Query(_ context.Context, req domain.QueryRequest) ([]domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockRetrievalService) BuildContext(ctx context.Context, req domain.QueryRequest) (*domain.ContextPayload, error) {
	results, err := m.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	payload := &domain.ContextPayload{Query: req.Query, Context: []string{}, Sources: results}
	for _, r := range results {
		payload.Context = append(payload.Context, r.Text)
	}
	return payload, nil
}

func (m *mockRetrievalService) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockRetrievalService) Health(context.Context) domain.HealthStatus {
	return m.health
}

func (m *mockRetrievalService) lastQuery() domain.QueryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return domain.QueryRequest{}
	}
	return m.queries[len(m.queries)-1]
}

// setupTestServices installs a runtime backed by a mock retrieval service
// and resets every flag to its default.
func setupTestServices() (*mockRetrievalService, func()) {
	resetFlags(rootCmd)

	mock := newMockRetrieval()
	rtMu.Lock()
	oldRT, oldBootstrap := rt, bootstrap
	rt = &Runtime{Retrieval: mock, Settings: domain.DefaultSettings()}
	rtMu.Unlock()

	return mock, func() {
		rtMu.Lock()
		rt, bootstrap = oldRT, oldBootstrap
		rtMu.Unlock()
		resetFlags(rootCmd)
	}
}

// resetFlags restores every flag of cmd and its subcommands to its default.
// Cobra commands are package globals, so flag values outlive a test.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns its output.
func execute(args ...string) (string, error) {
	return executeWithInput("", args...)
}

// executeWithInput runs the root command with input on stdin.
func executeWithInput(input string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// safeBuffer is a bytes.Buffer safe for concurrent writers.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
