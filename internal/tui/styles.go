// Package tui is the terminal front end: lipgloss renderers for every screen
// and a line-oriented command loop that drives the shell controller.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/insight"
)

// Theme defines the color scheme.
type Theme struct {
	Primary lipgloss.Color // headings and the current step
	Accent  lipgloss.Color // learner choices and completion marks
	Dim     lipgloss.Color // help text and placeholders
	Text    lipgloss.Color

	Perspectives map[catalog.Perspective]lipgloss.Color
	Cloud        map[insight.Color]lipgloss.Color
}

// DefaultTheme follows the warm amber and slate palette of the curriculum.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#b45309"),
	Accent:  lipgloss.Color("#f59e0b"),
	Dim:     lipgloss.Color("#94a3b8"),
	Text:    lipgloss.Color("#334155"),
	Perspectives: map[catalog.Perspective]lipgloss.Color{
		catalog.Order:    lipgloss.Color("#2563eb"),
		catalog.Vanity:   lipgloss.Color("#64748b"),
		catalog.Collapse: lipgloss.Color("#b91c1c"),
	},
	Cloud: map[insight.Color]lipgloss.Color{
		insight.Amber:      lipgloss.Color("#d97706"),
		insight.Slate:      lipgloss.Color("#475569"),
		insight.Blue:       lipgloss.Color("#2563eb"),
		insight.DeepAmber:  lipgloss.Color("#92400e"),
		insight.LightSlate: lipgloss.Color("#94a3b8"),
		insight.Emerald:    lipgloss.Color("#059669"),
	},
}

// Styles holds every style derived from a theme.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Step     lipgloss.Style
	Heading  lipgloss.Style
	Body     lipgloss.Style
	Quote    lipgloss.Style
	Emphasis lipgloss.Style
	Divider  lipgloss.Style
	Answer   lipgloss.Style
	Chosen   lipgloss.Style
	Done     lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Feedback lipgloss.Style
	Box      lipgloss.Style

	theme Theme
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtitle: lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
		Step:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Heading:  lipgloss.NewStyle().Bold(true).Foreground(t.Text).MarginTop(1),
		Body:     lipgloss.NewStyle().Foreground(t.Text),
		Quote:    lipgloss.NewStyle().Italic(true).Foreground(t.Primary),
		Emphasis: lipgloss.NewStyle().Foreground(t.Text).PaddingLeft(2),
		Divider:  lipgloss.NewStyle().Foreground(t.Dim),
		Answer:   lipgloss.NewStyle().Foreground(t.Accent),
		Chosen:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Done:     lipgloss.NewStyle().Foreground(t.Cloud[insight.Emerald]),
		Help:     lipgloss.NewStyle().Foreground(t.Dim),
		Error:    lipgloss.NewStyle().Foreground(t.Perspectives[catalog.Collapse]),
		Feedback: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1),
		Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Dim).Padding(0, 1),
		theme:    t,
	}
}

// Panel returns the bordered style of one perspective panel.
func (s Styles) Panel(p catalog.Perspective) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.theme.Perspectives[p]).
		Padding(0, 1)
}

// Book returns the label style of one perspective.
func (s Styles) Book(p catalog.Perspective) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(s.theme.Perspectives[p])
}

// Word returns the style of one word-cloud entry. Larger words are bold and
// faint words are dimmed.
func (s Styles) Word(w insight.Word) lipgloss.Style {
	st := lipgloss.NewStyle().Foreground(s.theme.Cloud[w.Color])
	if w.Size >= insight.SizeBase+insight.SizeSpan/2 {
		st = st.Bold(true)
	}
	if w.Opacity < insight.OpacityBase+insight.OpacitySpan/4 {
		st = st.Faint(true)
	}
	return st
}
