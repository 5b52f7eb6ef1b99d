package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchInput is the input schema for the search and build_context tools.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the natural language query"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"only search chunks of this document"`
	Source     string `json:"source,omitempty" jsonschema:"only search chunks from this source"`
	Dedupe     *bool  `json:"dedupe,omitempty" jsonschema:"return at most one chunk per document"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// ContextOutput is the output schema for the build_context tool.
type ContextOutput struct {
	Query   string                `json:"query"`
	Context []string              `json:"context"`
	Sources []domain.SearchResult `json:"sources"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	ID       string         `json:"id,omitempty" jsonschema:"stable document id; derived from title and source when empty"`
	Title    string         `json:"title,omitempty" jsonschema:"document title"`
	Text     string         `json:"text" jsonschema:"full plain text of the document"`
	Source   string         `json:"source,omitempty" jsonschema:"origin of the document such as a path or URL"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"free-form metadata; page is copied to every chunk"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// DeleteInput is the input schema for the delete_document tool.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"id of the document to remove"`
}

// DeleteOutput is the output schema for the delete_document tool.
type DeleteOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// HealthInput is the empty input of the health tool.
type HealthInput struct{}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over indexed document chunks, best match first",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_context",
		Description: "Retrieve the chunks that answer a question, packaged as context for answer generation",
	}, s.handleBuildContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Chunk, embed and index a plain-text document, replacing any previous version with the same id",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Remove every chunk of a document from the index",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "health",
		Description: "Report whether the embedding backend and the vector index are reachable",
	}, s.handleHealth)
}

// queryRequest converts tool input to a query request.
func (s *Server) queryRequest(input SearchInput) domain.QueryRequest {
	topK := input.TopK
	if topK == 0 {
		topK = s.ports.DefaultTopK
	}

	var filters map[string]string
	if input.DocumentID != "" || input.Source != "" {
		filters = make(map[string]string, 2)
		if input.DocumentID != "" {
			filters[domain.FilterDocumentID] = input.DocumentID
		}
		if input.Source != "" {
			filters[domain.FilterSource] = input.Source
		}
	}

	return domain.QueryRequest{
		Query:   input.Query,
		TopK:    topK,
		Filters: filters,
		Dedupe:  input.Dedupe,
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.ports.Retrieval.Query(ctx, s.queryRequest(input))
	if err != nil {
		return nil, SearchOutput{}, toolError(err)
	}

	if results == nil {
		results = []domain.SearchResult{}
	}
	return nil, SearchOutput{Results: results, Count: len(results)}, nil
}

// handleBuildContext handles the build_context tool invocation.
func (s *Server) handleBuildContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	payload, err := s.ports.Retrieval.BuildContext(ctx, s.queryRequest(input))
	if err != nil {
		return nil, ContextOutput{}, toolError(err)
	}

	return nil, ContextOutput{
		Query:   payload.Query,
		Context: payload.Context,
		Sources: payload.Sources,
	}, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	res, err := s.ports.Retrieval.Ingest(ctx, domain.IngestRequest{
		ID:       input.ID,
		Title:    input.Title,
		Text:     input.Text,
		Source:   input.Source,
		Metadata: input.Metadata,
	})
	if err != nil {
		return nil, IngestOutput{}, toolError(err)
	}

	return nil, IngestOutput{DocumentID: res.DocumentID, ChunkCount: res.ChunkCount}, nil
}

// handleDelete handles the delete_document tool invocation.
func (s *Server) handleDelete(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	if err := s.ports.Retrieval.Delete(ctx, input.DocumentID); err != nil {
		return nil, DeleteOutput{}, toolError(err)
	}
	return nil, DeleteOutput{DocumentID: input.DocumentID, Deleted: true}, nil
}

// handleHealth handles the health tool invocation.
func (s *Server) handleHealth(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ HealthInput,
) (*mcp.CallToolResult, domain.HealthStatus, error) {
	return nil, s.ports.Retrieval.Health(ctx), nil
}
