// Package health provides the pipeline health view for the TUI.
package health

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// View is the health view.
type View struct {
	styles    *styles.Styles
	retrieval driving.RetrievalService
	ctx       context.Context

	status  *domain.HealthStatus
	loading bool
	width   int
	height  int
	ready   bool
}

// NewView creates a new health view.
func NewView(s *styles.Styles, retrieval driving.RetrievalService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:    s,
		retrieval: retrieval,
		ctx:       context.Background(),
		width:     80,
	}
}

// WithContext sets the context for the view.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init loads the health status.
func (v *View) Init() tea.Cmd {
	v.loading = true
	return v.load()
}

func (v *View) load() tea.Cmd {
	return func() tea.Msg {
		if v.retrieval == nil {
			return messages.HealthLoaded{Status: domain.HealthStatus{
				Status:        "degraded",
				EmbedderError: "not configured",
				IndexError:    "not configured",
			}}
		}
		return messages.HealthLoaded{Status: v.retrieval.Health(v.ctx)}
	}
}

// Update handles messages for the health view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case messages.HealthLoaded:
		status := msg.Status
		v.status = &status
		v.loading = false
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return v, v.Init()
		case "esc":
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewMenu}
			}
		}
	}
	return v, nil
}

// View renders the health view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Pipeline Health"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", min(v.width-4, 60)))
	b.WriteString("\n\n")

	switch {
	case v.loading && v.status == nil:
		b.WriteString(v.styles.Muted.Render("Checking..."))
	case v.status == nil:
		b.WriteString(v.styles.Muted.Render("No health information"))
	default:
		b.WriteString(v.renderStatus(v.status))
	}

	b.WriteString("\n\n")
	b.WriteString(v.styles.Help.Render("[r] refresh  [esc] back"))
	return b.String()
}

func (v *View) renderStatus(h *domain.HealthStatus) string {
	overall := v.styles.Success.Render(h.Status)
	if !h.OK() {
		overall = v.styles.Warning.Render(h.Status)
	}

	lines := []string{
		v.styles.Label.Render("Status:") + overall,
		v.styles.Label.Render("Embedder:") + v.styles.Status(h.Embedder) + v.styles.Muted.Render("  "+h.Backend),
	}
	if h.EmbedderError != "" {
		lines = append(lines, v.styles.Label.Render("")+v.styles.Error.Render(h.EmbedderError))
	}
	lines = append(lines, v.styles.Label.Render("Index:")+v.styles.Status(h.Index)+v.styles.Muted.Render("  "+h.IndexBackend))
	if h.IndexError != "" {
		lines = append(lines, v.styles.Label.Render("")+v.styles.Error.Render(h.IndexError))
	}
	return strings.Join(lines, "\n")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Status returns the last loaded status.
func (v *View) Status() *domain.HealthStatus {
	return v.status
}

// Loading reports whether a health check is in flight.
func (v *View) Loading() bool {
	return v.loading
}
