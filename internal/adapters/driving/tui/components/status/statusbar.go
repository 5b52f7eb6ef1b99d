// Package status renders the query state line under the results.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
)

// State represents the current query state for display.
type State string

const (
	StateReady     State = "ready"
	StateSearching State = "searching"
	StateError     State = "error"
	StateResults   State = "results"
)

// Bar displays query status and keybinding hints.
type Bar struct {
	styles      *styles.Styles
	keymap      *keymap.KeyMap
	state       State
	message     string
	resultCount int
	elapsed     time.Duration
	best        float64
	dedupe      bool
	width       int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		state:  StateReady,
		width:  80,
	}
}

// Init initialises the status bar.
func (s *Bar) Init() tea.Cmd {
	return nil
}

// Update handles status bar messages. The bar is driven through its setters.
func (s *Bar) Update(_ tea.Msg) (*Bar, tea.Cmd) {
	return s, nil
}

// View renders the status bar.
func (s *Bar) View() string {
	left := s.renderLeft()
	right := s.renderRight()

	padding := max(s.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return s.styles.StatusBar.Width(s.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

// renderLeft renders the state and flags.
func (s *Bar) renderLeft() string {
	var left string
	switch s.state {
	case StateSearching:
		left = s.styles.Muted.Render("Searching...")
	case StateError:
		if s.message != "" {
			left = s.styles.Error.Render("Error: " + s.message)
		} else {
			left = s.styles.Error.Render("Error")
		}
	case StateResults:
		left = s.styles.Normal.Render(fmt.Sprintf("%d results", s.resultCount))
		if s.elapsed > 0 {
			left += s.styles.Muted.Render(" in " + s.elapsed.Round(time.Millisecond).String())
		}
		if s.resultCount > 0 {
			left += s.styles.Muted.Render(" · best ") + s.styles.RenderScore(s.best)
		}
	default:
		left = s.styles.Muted.Render("Ready")
	}

	if s.state != StateError && s.message != "" {
		left += s.styles.Muted.Render(" · " + s.message)
	}
	if s.dedupe {
		left += s.styles.Muted.Render(" · dedupe")
	}
	return left
}

// renderRight renders keybinding hints.
func (s *Bar) renderRight() string {
	bindings := s.Bindings()
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	return s.styles.Muted.Render(strings.Join(hints, " | "))
}

// Bindings returns the hints currently shown.
func (s *Bar) Bindings() []key.Binding {
	if s.state == StateResults && s.resultCount > 0 {
		return s.keymap.ResultsHelp()
	}
	return s.keymap.ShortHelp()
}

// SetState sets the current state.
func (s *Bar) SetState(state State) {
	s.state = state
}

// State returns the current state.
func (s *Bar) State() State {
	return s.state
}

// SetMessage sets a custom message.
func (s *Bar) SetMessage(message string) {
	s.message = message
}

// Message returns the current message.
func (s *Bar) Message() string {
	return s.message
}

// SetResultCount sets the result count.
func (s *Bar) SetResultCount(count int) {
	s.resultCount = count
}

// ResultCount returns the current result count.
func (s *Bar) ResultCount() int {
	return s.resultCount
}

// SetTiming records how long the last query took and its top score.
func (s *Bar) SetTiming(elapsed time.Duration, best float64) {
	s.elapsed = elapsed
	s.best = best
}

// Elapsed returns the duration of the last query.
func (s *Bar) Elapsed() time.Duration {
	return s.elapsed
}

// SetDedupe sets whether per-document deduplication is shown as active.
func (s *Bar) SetDedupe(on bool) {
	s.dedupe = on
}

// SetWidth sets the status bar width.
func (s *Bar) SetWidth(width int) {
	s.width = width
}

// Width returns the current width.
func (s *Bar) Width() int {
	return s.width
}

// Clear resets the status bar to its default state.
func (s *Bar) Clear() {
	s.state = StateReady
	s.message = ""
	s.resultCount = 0
	s.elapsed = 0
	s.best = 0
}
