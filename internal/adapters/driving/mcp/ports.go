package mcp

import (
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the MCP server.
type Ports struct {
	// Retrieval ingests and searches documents.
	Retrieval driving.RetrievalService

	// DefaultTopK is used when a tool call does not set top_k (default: 5).
	DefaultTopK int
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
