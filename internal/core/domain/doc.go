// Package domain defines the core retrieval entities for sercha-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: Plain text plus metadata submitted for ingestion
//   - Chunk: A bounded passage of a document, the unit of retrieval
//   - SearchResult: A ranked chunk returned by a query
//   - Settings: Application configuration
//
// It also defines the error taxonomy shared by every layer.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
