// Package messages holds the tea.Msg types passed between TUI views.
package messages

import (
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchRequested is a command to run a query.
type SearchRequested struct {
	Request domain.QueryRequest
}

// SearchCompleted carries query results back to the model.
type SearchCompleted struct {
	Query   string
	Results []domain.SearchResult
	Err     error

	// Elapsed is the time the retrieval service took.
	Elapsed time.Duration
}

// ResultSelected is sent when a result is opened.
type ResultSelected struct {
	Result domain.SearchResult
}

// HealthLoaded carries the pipeline health.
type HealthLoaded struct {
	Status domain.HealthStatus
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewMenu is the main navigation menu.
	ViewMenu ViewType = iota
	// ViewSearch is the query input and results view.
	ViewSearch
	// ViewChunk shows the full text of one result.
	ViewChunk
	// ViewHealth shows embedder and index availability.
	ViewHealth
	// ViewHelp is the help/keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewMenu:
		return "menu"
	case ViewSearch:
		return "search"
	case ViewChunk:
		return "chunk"
	case ViewHealth:
		return "health"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}
