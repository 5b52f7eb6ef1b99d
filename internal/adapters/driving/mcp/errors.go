// Package mcp provides an MCP (Model Context Protocol) server adapter for
// sercha-rag. It lets AI assistants search, ingest and delete documents.
package mcp

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// toolError converts a service error into the message shown to the
// assistant: its kind and a message free of internal detail.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	d := domain.Describe(err)
	return fmt.Errorf("%s: %s", d.Kind, d.Message)
}
