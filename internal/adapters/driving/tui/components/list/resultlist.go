// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ResultList displays ranked chunks in a navigable list.
type ResultList struct {
	results  []domain.SearchResult
	selected int
	styles   *styles.Styles
	width    int
	height   int
}

// NewResultList creates a new result list component.
func NewResultList(s *styles.Styles) *ResultList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &ResultList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the result list.
func (r *ResultList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (r *ResultList) Update(msg tea.Msg) (*ResultList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			r.MoveUp()
		case "down", "j":
			r.MoveDown()
		}
	}
	return r, nil
}

// View renders the result list.
func (r *ResultList) View() string {
	if len(r.results) == 0 {
		return r.styles.Muted.Render("No results")
	}

	lines := make([]string, 0, len(r.results)+2)
	lines = append(lines, r.styles.Subtitle.Render(fmt.Sprintf("Results (%d)", len(r.results))), "")

	// Each result renders as a heading and a preview line.
	visible := max((r.height-4)/3, 1)
	start := 0
	if r.selected >= visible {
		start = r.selected - visible + 1
	}
	end := min(start+visible, len(r.results))

	for i := start; i < end; i++ {
		lines = append(lines, r.renderResult(i, &r.results[i]))
	}
	return strings.Join(lines, "\n")
}

// renderResult formats a single result with a one-line preview.
func (r *ResultList) renderResult(index int, result *domain.SearchResult) string {
	indicator := "  "
	if index == r.selected {
		indicator = "> "
	}

	heading := Heading(result)
	heading = domain.Truncate(heading, max(r.width-20, 10))

	var headingLine string
	if index == r.selected {
		headingLine = r.styles.Selected.Render(fmt.Sprintf("%s%d. %s  %.3f", indicator, index+1, heading, result.Score))
	} else {
		headingLine = r.styles.Normal.Render(fmt.Sprintf("%s%d. %s  ", indicator, index+1, heading)) +
			r.styles.RenderScore(result.Score)
	}

	preview := strings.Join(strings.Fields(result.Text), " ")
	preview = domain.Truncate(preview, max(r.width-6, 20))
	return headingLine + "\n" + r.styles.Muted.Render("    "+preview)
}

// Heading names a result by its source file and chunk position.
func Heading(result *domain.SearchResult) string {
	name := result.DocumentID
	if result.Source != "" {
		name = filepath.Base(result.Source)
	}
	heading := fmt.Sprintf("%s #%d", name, result.ChunkIndex)
	if result.Page > 0 {
		heading += fmt.Sprintf(" p.%d", result.Page)
	}
	return heading
}

// SetResults updates the result list.
func (r *ResultList) SetResults(results []domain.SearchResult) {
	r.results = results
	r.selected = 0
}

// Results returns the current results.
func (r *ResultList) Results() []domain.SearchResult {
	return r.results
}

// Selected returns the index of the selected result.
func (r *ResultList) Selected() int {
	return r.selected
}

// SetSelected sets the selected index.
func (r *ResultList) SetSelected(index int) {
	if index >= 0 && index < len(r.results) {
		r.selected = index
	}
}

// SelectedResult returns the currently selected result, or nil if none.
func (r *ResultList) SelectedResult() *domain.SearchResult {
	if len(r.results) == 0 || r.selected < 0 || r.selected >= len(r.results) {
		return nil
	}
	return &r.results[r.selected]
}

// MoveUp moves selection up.
func (r *ResultList) MoveUp() {
	if r.selected > 0 {
		r.selected--
	}
}

// MoveDown moves selection down.
func (r *ResultList) MoveDown() {
	if r.selected < len(r.results)-1 {
		r.selected++
	}
}

// SetDimensions sets the component dimensions.
func (r *ResultList) SetDimensions(width, height int) {
	r.width = width
	r.height = height
}

// Width returns the current width.
func (r *ResultList) Width() int {
	return r.width
}

// Height returns the current height.
func (r *ResultList) Height() int {
	return r.height
}

// Count returns the number of results.
func (r *ResultList) Count() int {
	return len(r.results)
}

// IsEmpty returns whether the list is empty.
func (r *ResultList) IsEmpty() bool {
	return len(r.results) == 0
}
