// Package chunk provides the view that shows one retrieved chunk in full.
package chunk

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// reservedLines is the space taken by the title, metadata and help footer.
const reservedLines = 9

// View is the chunk detail view.
type View struct {
	styles   *styles.Styles
	viewport viewport.Model

	result *domain.SearchResult
	width  int
	height int
	ready  bool
}

// NewView creates a new chunk view.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:   s,
		viewport: viewport.New(80, 24-reservedLines),
		width:    80,
		height:   24,
	}
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return nil
}

// SetResult shows result from the top.
func (v *View) SetResult(result domain.SearchResult) {
	v.result = &result
	v.refresh()
	v.viewport.GotoTop()
}

// Update handles messages for the chunk view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewSearch}
			}
		case "g", "home":
			v.viewport.GotoTop()
			return v, nil
		case "G", "end":
			v.viewport.GotoBottom()
			return v, nil
		}
	}

	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return v, cmd
}

// refresh wraps the chunk text to the current width.
func (v *View) refresh() {
	if v.result == nil {
		v.viewport.SetContent("")
		return
	}
	wrapped := lipgloss.NewStyle().Width(max(v.width-4, 20)).Render(v.result.Text)
	v.viewport.SetContent(wrapped)
}

// View renders the chunk view.
func (v *View) View() string {
	var b strings.Builder

	if v.result == nil {
		b.WriteString(v.styles.Title.Render("Chunk"))
		b.WriteString("\n\n")
		b.WriteString(v.styles.Muted.Render("No result selected"))
		b.WriteString("\n\n")
		b.WriteString(v.renderHelp())
		return b.String()
	}

	b.WriteString(v.styles.Title.Render(list.Heading(v.result)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", min(v.width-4, 60)))
	b.WriteString("\n")
	b.WriteString(v.field("Document", v.result.DocumentID))
	b.WriteString(v.field("Source", v.result.Source))
	b.WriteString(v.field("Score", fmt.Sprintf("%.4f", v.result.Score)))
	b.WriteString("\n")
	b.WriteString(v.viewport.View())
	b.WriteString("\n\n")

	if v.viewport.TotalLineCount() > v.viewport.Height {
		b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  [%3.f%%]", v.viewport.ScrollPercent()*100)))
		b.WriteString("  ")
	}
	b.WriteString(v.renderHelp())
	return b.String()
}

func (v *View) field(label, value string) string {
	if value == "" {
		value = "-"
	}
	return v.styles.Label.Render(label+":") + v.styles.Normal.Render(value) + "\n"
}

// renderHelp renders the help footer.
func (v *View) renderHelp() string {
	return v.styles.Help.Render("[↑/↓/PgUp/PgDn] scroll  [g/G] top/bottom  [esc] back")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
	v.viewport.Width = width
	v.viewport.Height = max(height-reservedLines, 1)
	v.refresh()
}

// Result returns the chunk being shown.
func (v *View) Result() *domain.SearchResult {
	return v.result
}

// AtTop reports whether the text is scrolled to the top.
func (v *View) AtTop() bool {
	return v.viewport.AtTop()
}
