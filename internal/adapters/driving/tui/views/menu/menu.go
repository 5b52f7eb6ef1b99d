// Package menu is the TUI start screen.
package menu

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
)

// Item is one menu entry. Shortcut jumps straight to it.
type Item struct {
	Label       string
	Description string
	Shortcut    string
	View        messages.ViewType
	Quit        bool
}

// View is the start screen model.
type View struct {
	styles   *styles.Styles
	keys     *keymap.KeyMap
	items    []Item
	selected int
	width    int
	height   int
	ready    bool
}

// NewView creates the menu with the cursor on Query.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles: s,
		keys:   keymap.DefaultKeyMap(),
		items: []Item{
			{Label: "Query", Description: "Find passages similar to a question", Shortcut: "/", View: messages.ViewSearch},
			{Label: "Health", Description: "Check the embedder, index and jobs", Shortcut: "h", View: messages.ViewHealth},
			{Label: "Help", Description: "List key bindings", Shortcut: "?", View: messages.ViewHelp},
			{Label: "Quit", Shortcut: "q", Quit: true},
		},
		width:  80,
		height: 24,
	}
}

// Init has nothing to load.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update moves the cursor and opens entries.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Up):
			v.selected = max(v.selected-1, 0)
		case key.Matches(msg, v.keys.Down):
			v.selected = min(v.selected+1, len(v.items)-1)
		case key.Matches(msg, v.keys.Open):
			return v, v.open(v.items[v.selected])
		default:
			for i, item := range v.items {
				if msg.String() == item.Shortcut {
					v.selected = i
					return v, v.open(item)
				}
			}
		}
	}
	return v, nil
}

func (v *View) open(item Item) tea.Cmd {
	if item.Quit {
		return tea.Quit
	}
	return func() tea.Msg {
		return messages.ViewChanged{View: item.View}
	}
}

// View renders the entries with the cursor and their descriptions.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render("Sercha RAG"))
	b.WriteString("\n")
	b.WriteString(v.styles.Muted.Render("Semantic retrieval over your documents"))
	b.WriteString("\n\n")

	for i, item := range v.items {
		label := fmt.Sprintf("%-8s", item.Label)
		if i == v.selected {
			b.WriteString("> " + v.styles.Subtitle.Render(label))
		} else {
			b.WriteString("  " + v.styles.Normal.Render(label))
		}
		b.WriteString(v.styles.Help.Render(fmt.Sprintf(" [%s]", item.Shortcut)))
		if item.Description != "" {
			b.WriteString("  " + v.styles.Muted.Render(item.Description))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[j/k] Navigate  [Enter] Select  [q] Quit"))
	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Items returns the menu entries.
func (v *View) Items() []Item {
	return v.items
}

// Selected returns the cursor position.
func (v *View) Selected() int {
	return v.selected
}
