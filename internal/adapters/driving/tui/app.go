package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/views/chunk"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/views/health"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/views/menu"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/views/search"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// App is the main TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	// ports provides access to core services via driving ports.
	ports *Ports

	// ctx is the context for cancellation.
	ctx context.Context

	// styles holds the TUI styles.
	styles *styles.Styles

	menuView   *menu.View
	searchView *search.View
	chunkView  *chunk.View
	healthView *health.View

	// currentView tracks which view is active.
	currentView messages.ViewType

	// err holds the last error that occurred.
	err error

	// width and height are terminal dimensions.
	width  int
	height int

	// ready indicates if the app has initialised.
	ready bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	return &App{
		ports:       ports,
		ctx:         context.Background(),
		styles:      s,
		menuView:    menu.NewView(s),
		searchView:  search.NewView(s, nil, ports.Retrieval, ports.DefaultTopK),
		chunkView:   chunk.NewView(s),
		healthView:  health.NewView(s, ports.Retrieval),
		currentView: messages.ViewMenu,
	}, nil
}

// WithContext sets the context used for service calls.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.searchView.WithContext(ctx)
	a.healthView.WithContext(ctx)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tea.SetWindowTitle("sercha-rag"),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		return a, a.forward(msg)

	case messages.ViewChanged:
		a.currentView = msg.View
		switch msg.View {
		case messages.ViewSearch:
			// Returning from a chunk keeps the results in place.
			if a.searchView.Results() == nil {
				a.searchView.Reset()
			}
			return a, a.searchView.Init()
		case messages.ViewHealth:
			return a, a.healthView.Init()
		case messages.ViewMenu, messages.ViewChunk, messages.ViewHelp:
		}
		return a, nil

	case messages.ResultSelected:
		a.chunkView.SetResult(msg.Result)
		a.currentView = messages.ViewChunk
		return a, nil

	case messages.SearchCompleted:
		a.searchView, cmd = a.searchView.Update(msg)
		a.err = msg.Err
		return a, cmd

	case messages.HealthLoaded:
		a.healthView, cmd = a.healthView.Update(msg)
		return a, cmd

	case messages.ErrorOccurred:
		a.err = msg.Err
		if a.currentView == messages.ViewSearch {
			a.searchView, cmd = a.searchView.Update(msg)
		}
		return a, cmd

	case messages.Quit:
		return a, tea.Quit
	}

	return a, a.forward(msg)
}

// forward sends msg to the active view.
func (a *App) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.currentView {
	case messages.ViewMenu:
		a.menuView, cmd = a.menuView.Update(msg)
	case messages.ViewSearch:
		a.searchView, cmd = a.searchView.Update(msg)
	case messages.ViewChunk:
		a.chunkView, cmd = a.chunkView.Update(msg)
	case messages.ViewHealth:
		a.healthView, cmd = a.healthView.Update(msg)
	case messages.ViewHelp:
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEsc {
			a.currentView = messages.ViewMenu
		}
	}
	return cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	switch a.currentView {
	case messages.ViewSearch:
		return a.searchView.View()
	case messages.ViewChunk:
		return a.chunkView.View()
	case messages.ViewHealth:
		return a.healthView.View()
	case messages.ViewHelp:
		return a.viewHelp()
	default:
		return a.menuView.View()
	}
}

// viewHelp renders the help view.
func (a *App) viewHelp() string {
	return a.styles.Title.Render("Help") + `

Navigation:
  esc         Back
  ctrl+c      Quit

Menu:
  j/k, ↑/↓    Navigate options
  enter       Select option
  / h ?       Open Query, Health, Help
  q           Quit

Query:
  (type)      Enter a question
  enter       Run the query

Results:
  j/k, ↑/↓    Navigate results
  enter       Show the full chunk
  n           New query
  d           Toggle one result per document

Health:
  r           Check again

` + a.styles.Help.Render("[esc] back to menu")
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// Results returns the current query results.
func (a *App) Results() []domain.SearchResult {
	return a.searchView.Results()
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions on every view.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.menuView.SetDimensions(width, height)
	a.searchView.SetDimensions(width, height)
	a.chunkView.SetDimensions(width, height)
	a.healthView.SetDimensions(width, height)
}
