// Package search provides the query view for the TUI.
package search

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// DefaultTopK is the number of results requested when none is configured.
const DefaultTopK = 5

// View represents the query view with input, results list, and status bar.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.SearchInput
	list      *list.ResultList
	statusbar *status.Bar

	retrieval driving.RetrievalService
	ctx       context.Context
	topK      int
	dedupe    bool

	width      int
	height     int
	ready      bool
	err        error
	focusInput bool // true = typing a query, false = navigating results
}

// NewView creates a new query view.
func NewView(
	s *styles.Styles,
	km *keymap.KeyMap,
	retrieval driving.RetrievalService,
	topK int,
) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &View{
		styles:     s,
		keymap:     km,
		input:      input.NewSearchInput(s),
		list:       list.NewResultList(s),
		statusbar:  status.NewBar(s, km),
		retrieval:  retrieval,
		ctx:        context.Background(),
		topK:       topK,
		width:      80,
		height:     24,
		focusInput: true,
	}
}

// WithContext sets the context for the view.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the query view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.SearchCompleted:
		v.handleSearchCompleted(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil
	}

	var cmd tea.Cmd
	if v.focusInput {
		v.input, cmd = v.input.Update(msg)
	}
	return v, cmd
}

// handleKeyMsg processes keyboard input.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}

	if v.focusInput {
		if msg.Type == tea.KeyEnter {
			query := v.input.Value()
			if query == "" {
				return v, nil
			}
			v.input.Remember(query)
			v.statusbar.SetState(status.StateSearching)
			v.focusInput = false
			v.input.Blur()
			return v, v.performSearch(query)
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}

	switch {
	case keymap.Matches(msg.String(), v.keymap.Open):
		if result := v.list.SelectedResult(); result != nil {
			selected := *result
			return v, func() tea.Msg {
				return messages.ResultSelected{Result: selected}
			}
		}
		return v, nil
	case keymap.Matches(msg.String(), v.keymap.NewSearch):
		v.focusInput = true
		v.input.SetValue("")
		return v, v.input.Focus()
	case keymap.Matches(msg.String(), v.keymap.Dedupe):
		v.dedupe = !v.dedupe
		v.statusbar.SetDedupe(v.dedupe)
		if query := v.input.Value(); query != "" {
			v.statusbar.SetState(status.StateSearching)
			return v, v.performSearch(query)
		}
		return v, nil
	}

	v.list, _ = v.list.Update(msg)
	return v, nil
}

// Request builds the query request for query.
func (v *View) Request(query string) domain.QueryRequest {
	dedupe := v.dedupe
	return domain.QueryRequest{Query: query, TopK: v.topK, Dedupe: &dedupe}
}

// performSearch runs a query and reports the results as a message.
func (v *View) performSearch(query string) tea.Cmd {
	req := v.Request(query)
	return func() tea.Msg {
		if v.retrieval == nil {
			return messages.ErrorOccurred{Err: ErrNoRetrievalService}
		}

		start := time.Now()
		results, err := v.retrieval.Query(v.ctx, req)
		return messages.SearchCompleted{
			Query:   req.Query,
			Results: results,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}

// handleSearchCompleted processes query results.
func (v *View) handleSearchCompleted(msg messages.SearchCompleted) {
	if msg.Err != nil {
		v.setError(msg.Err)
		return
	}

	v.err = nil
	v.list.SetResults(msg.Results)
	v.statusbar.SetState(status.StateResults)
	v.statusbar.SetResultCount(len(msg.Results))
	best := 0.0
	if len(msg.Results) > 0 {
		best = msg.Results[0].Score
	}
	v.statusbar.SetTiming(msg.Elapsed, best)
	v.statusbar.SetMessage(fmt.Sprintf("top %d", v.topK))
	v.focusInput = false
	v.input.Blur()
}

func (v *View) setError(err error) {
	v.err = err
	v.statusbar.SetState(status.StateError)
	v.statusbar.SetMessage(ErrorMessage(err))
}

// ErrorMessage renders err without internal detail.
func ErrorMessage(err error) string {
	d := domain.Describe(err)
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// View renders the query view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 8)
	sections = append(sections, v.styles.Title.Render("Sercha RAG"), "", v.input.View(), "")

	if v.err != nil {
		sections = append(sections, v.styles.Error.Render(ErrorMessage(v.err)), "")
	}

	sections = append(sections, v.list.View(), "", v.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.input.SetWidth(width)
	v.list.SetDimensions(width, height-10)
	v.statusbar.SetWidth(width)
}

// Width returns the current width.
func (v *View) Width() int {
	return v.width
}

// Height returns the current height.
func (v *View) Height() int {
	return v.height
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Query returns the current query.
func (v *View) Query() string {
	return v.input.Value()
}

// SetQuery sets the query.
func (v *View) SetQuery(query string) {
	v.input.SetValue(query)
}

// Results returns the current results.
func (v *View) Results() []domain.SearchResult {
	return v.list.Results()
}

// SelectedIndex returns the index of the selected result.
func (v *View) SelectedIndex() int {
	return v.list.Selected()
}

// Dedupe reports whether one result per document is requested.
func (v *View) Dedupe() bool {
	return v.dedupe
}

// Err returns the current error, if any.
func (v *View) Err() error {
	return v.err
}

// Reset returns the view to input mode with no results.
func (v *View) Reset() {
	v.focusInput = true
	v.input.Focus()
	v.input.SetValue("")
	v.list.SetResults(nil)
	v.err = nil
	v.statusbar.Clear()
}

// InputFocused returns whether the input has focus.
func (v *View) InputFocused() bool {
	return v.focusInput
}
