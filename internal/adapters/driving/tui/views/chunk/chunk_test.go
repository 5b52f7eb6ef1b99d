package chunk

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func longResult() domain.SearchResult {
	return domain.SearchResult{
		ChunkID:    "chunk-1",
		DocumentID: "quality",
		ChunkIndex: 1,
		Source:     "/docs/quality-process.md",
		Text:       strings.Repeat("품질 관리 프로세스는 체계적인 활동입니다.\n", 40),
		Score:      0.8123,
	}
}

func TestNewView(t *testing.T) {
	view := NewView(nil)

	require.NotNil(t, view)
	assert.Nil(t, view.Result())
	assert.Nil(t, view.Init())
	assert.Contains(t, view.View(), "No result selected")
}

func TestView_SetResult(t *testing.T) {
	view := NewView(nil)
	view.SetDimensions(100, 30)

	view.SetResult(longResult())

	require.NotNil(t, view.Result())
	rendered := view.View()
	assert.Contains(t, rendered, "quality-process.md #1")
	assert.Contains(t, rendered, "0.8123")
	assert.Contains(t, rendered, "품질 관리 프로세스")
	assert.True(t, view.AtTop())
}

func TestView_Scrolling(t *testing.T) {
	view := NewView(nil)
	view.SetDimensions(100, 20)
	view.SetResult(longResult())

	view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	assert.False(t, view.AtTop())

	view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	assert.True(t, view.AtTop())

	view.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.False(t, view.AtTop())
}

func TestView_SetResultResetsScroll(t *testing.T) {
	view := NewView(nil)
	view.SetDimensions(100, 20)
	view.SetResult(longResult())
	view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})

	view.SetResult(longResult())

	assert.True(t, view.AtTop())
}

func TestView_Update_Esc(t *testing.T) {
	view := NewView(nil)

	_, cmd := view.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)

	assert.Equal(t, messages.ViewChanged{View: messages.ViewSearch}, cmd())
}

func TestView_Update_WindowSize(t *testing.T) {
	view := NewView(nil)

	view.Update(tea.WindowSizeMsg{Width: 120, Height: 50})

	assert.Equal(t, 120, view.viewport.Width)
	assert.Equal(t, 50-reservedLines, view.viewport.Height)
}
