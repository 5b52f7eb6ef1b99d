// Package input is the query box of the search view.
package input

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
)

// MaxQueryLength is the longest query the input accepts, in runes.
const MaxQueryLength = 512

// MaxHistory is how many past queries are recalled with the arrow keys.
const MaxHistory = 50

// SearchInput is a single-line query editor with a recall history.
type SearchInput struct {
	textinput textinput.Model
	styles    *styles.Styles
	width     int

	history []string
	// cursor indexes history while recalling; len(history) means the draft.
	cursor int
	draft  string
}

// NewSearchInput creates a focused, empty input.
func NewSearchInput(s *styles.Styles) *SearchInput {
	if s == nil {
		s = styles.DefaultStyles()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about your documents..."
	ti.CharLimit = MaxQueryLength
	ti.Width = 50
	ti.Focus()

	return &SearchInput{textinput: ti, styles: s, width: 50}
}

// Init starts the cursor blinking.
func (s *SearchInput) Init() tea.Cmd {
	return textinput.Blink
}

// Update edits the query. Up and down walk the history while focused.
func (s *SearchInput) Update(msg tea.Msg) (*SearchInput, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && s.textinput.Focused() {
		switch key.Type {
		case tea.KeyUp:
			s.recall(-1)
			return s, nil
		case tea.KeyDown:
			s.recall(1)
			return s, nil
		}
	}

	var cmd tea.Cmd
	s.textinput, cmd = s.textinput.Update(msg)
	return s, cmd
}

// Remember records a submitted query, dropping an immediate repeat.
func (s *SearchInput) Remember(query string) {
	query = strings.TrimSpace(query)
	if query != "" && (len(s.history) == 0 || s.history[len(s.history)-1] != query) {
		s.history = append(s.history, query)
		if len(s.history) > MaxHistory {
			s.history = s.history[len(s.history)-MaxHistory:]
		}
	}
	s.cursor = len(s.history)
	s.draft = ""
}

// History returns past queries, oldest first.
func (s *SearchInput) History() []string {
	return s.history
}

func (s *SearchInput) recall(step int) {
	if len(s.history) == 0 {
		return
	}
	if s.cursor == len(s.history) {
		s.draft = s.textinput.Value()
	}
	s.cursor = min(max(s.cursor+step, 0), len(s.history))
	if s.cursor == len(s.history) {
		s.textinput.SetValue(s.draft)
	} else {
		s.textinput.SetValue(s.history[s.cursor])
	}
	s.textinput.CursorEnd()
}

// View renders the label and the box.
func (s *SearchInput) View() string {
	label := s.styles.Title.Render("Query: ")
	return lipgloss.JoinHorizontal(lipgloss.Center, label, s.styles.InputField.Render(s.textinput.View()))
}

// Value returns the query with surrounding space removed.
func (s *SearchInput) Value() string {
	return strings.TrimSpace(s.textinput.Value())
}

// SetValue replaces the query text.
func (s *SearchInput) SetValue(value string) {
	s.textinput.SetValue(value)
}

// Focus gives the input keyboard focus.
func (s *SearchInput) Focus() tea.Cmd {
	return s.textinput.Focus()
}

// Blur removes keyboard focus.
func (s *SearchInput) Blur() {
	s.textinput.Blur()
}

// Focused reports whether the input has keyboard focus.
func (s *SearchInput) Focused() bool {
	return s.textinput.Focused()
}

// SetWidth sets the total width, leaving room for the label.
func (s *SearchInput) SetWidth(width int) {
	s.width = width
	s.textinput.Width = max(width-12, 20)
}

// Width returns the total width.
func (s *SearchInput) Width() int {
	return s.width
}

// Reset clears the query but keeps the history.
func (s *SearchInput) Reset() {
	s.textinput.Reset()
	s.cursor = len(s.history)
	s.draft = ""
}
