// Package tui provides an interactive terminal user interface for sercha-rag.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the TUI.
type Ports struct {
	// Retrieval answers queries and reports pipeline health.
	Retrieval driving.RetrievalService

	// DefaultTopK is the number of results requested per query (default: 5).
	DefaultTopK int
}

// NewPorts creates a new Ports aggregate.
func NewPorts(retrieval driving.RetrievalService, defaultTopK int) *Ports {
	return &Ports{
		Retrieval:   retrieval,
		DefaultTopK: defaultTopK,
	}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
