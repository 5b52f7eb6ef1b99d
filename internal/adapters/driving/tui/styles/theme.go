// Package styles holds the TUI palette and the lipgloss styles built from it.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Score bands. Cosine scores at or above StrongMatch are shown as strong
// matches, those below WeakMatch as weak ones.
const (
	StrongMatch = 0.5
	WeakMatch   = 0.2
)

// Theme is the colour palette.
type Theme struct {
	Accent    lipgloss.Color
	Highlight lipgloss.Color
	Text      lipgloss.Color
	Dim       lipgloss.Color
	Panel     lipgloss.Color
	Frame     lipgloss.Color
	Good      lipgloss.Color
	Caution   lipgloss.Color
	Bad       lipgloss.Color
}

// DefaultTheme is a dark palette.
func DefaultTheme() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#7C3AED"),
		Highlight: lipgloss.Color("#06B6D4"),
		Text:      lipgloss.Color("#CDD6F4"),
		Dim:       lipgloss.Color("#6C7086"),
		Panel:     lipgloss.Color("#181825"),
		Frame:     lipgloss.Color("#45475A"),
		Good:      lipgloss.Color("#A6E3A1"),
		Caution:   lipgloss.Color("#F9E2AF"),
		Bad:       lipgloss.Color("#F38BA8"),
	}
}

// Styles are the rendered styles shared by every view.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style
	Border     lipgloss.Style
	Label      lipgloss.Style

	// Score is the neutral style for scores outside any band.
	Score lipgloss.Style
}

// NewStyles builds styles from theme, or from DefaultTheme when nil.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}
	fg := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}

	return &Styles{
		theme:    theme,
		Title:    fg(theme.Accent).Bold(true),
		Subtitle: fg(theme.Highlight).Bold(true),
		Normal:   fg(theme.Text),
		Muted:    fg(theme.Dim),
		Selected: fg(theme.Text).Background(theme.Accent).Bold(true),
		Error:    fg(theme.Bad),
		Success:  fg(theme.Good),
		Warning:  fg(theme.Caution),
		InputField: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Frame).
			Padding(0, 1),
		StatusBar: fg(theme.Dim).Background(theme.Panel).Padding(0, 1),
		Help:      fg(theme.Dim),
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Frame),
		Label: fg(theme.Highlight).Bold(true).Width(16),
		Score: fg(theme.Highlight),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the palette the styles were built from.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Status renders a health flag as a coloured word.
func (s *Styles) Status(ok bool) string {
	if ok {
		return s.Success.Render("available")
	}
	return s.Error.Render("unavailable")
}

// ScoreStyle picks the style for a similarity score by band.
func (s *Styles) ScoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= StrongMatch:
		return s.Success
	case score < WeakMatch:
		return s.Muted
	default:
		return s.Score
	}
}

// RenderScore formats score to three decimals in its band colour.
func (s *Styles) RenderScore(score float64) string {
	return s.ScoreStyle(score).Render(fmt.Sprintf("%.3f", score))
}
