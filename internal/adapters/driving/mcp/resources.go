package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for sercha-rag resources.
	uriScheme = "sercha-rag://"

	healthURI = uriScheme + "health"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         healthURI,
		Name:        "health",
		Description: "Availability of the embedding backend and the vector index",
		MIMEType:    "application/json",
	}, s.handleHealthResource)
}

// handleHealthResource returns the pipeline health as JSON.
func (s *Server) handleHealthResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if req.Params.URI != healthURI {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := json.MarshalIndent(s.ports.Retrieval.Health(ctx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling health: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
