package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of the voice view.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}

// DefaultTheme is the bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Alert  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Alert:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// Section is a labeled block of the frame. Only the last lines that fit are
// shown.
type Section struct {
	Label string
	Lines []string
}

// Frame is one screen of the voice view: a title with a status badge, the
// sections, and a help line under the border.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Alert    bool // render Status with the alert style
	Sections []Section
	Help     string
}

// Render renders the frame at the given terminal size.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 8 {
		return f.Title + " [" + f.Status + "]"
	}

	bc := f.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]    │
	title := f.Styles.Title.Render(f.Title)
	badge := f.Styles.Help.Render("[" + f.Status + "]")
	if f.Alert {
		badge = f.Styles.Alert.Render("[" + f.Status + "]")
	}
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(badge))
	lines = append(lines, bc.Render("│")+" "+title+" "+badge+strings.Repeat(" ", pad)+" "+bc.Render("│"))
	lines = append(lines, bc.Render("│")+strings.Repeat(" ", width-2)+bc.Render("│"))

	n := max(len(f.Sections), 1)
	// top, title, blank, one label per section, bottom, help
	rows := max((height-5-n)/n, 2)
	for _, sec := range f.Sections {
		lines = append(lines, f.section(sec, rows, width, inner)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

func (f Frame) section(sec Section, rows, width, inner int) []string {
	bc := f.Styles.Border
	label := f.Styles.Label.Render(sec.Label)
	pad := max(0, width-3-lipgloss.Width(label))
	out := []string{bc.Render("├") + bc.Render("─") + label + bc.Render(strings.Repeat("─", pad)) + bc.Render("┤")}

	start := max(0, len(sec.Lines)-rows)
	for i := range rows {
		text := ""
		if idx := start + i; idx < len(sec.Lines) {
			text = sec.Lines[idx]
		}
		if inner > 1 && lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		out = append(out, bc.Render("│")+" "+text+strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return out
}

// truncate cuts s to at most width display cells without splitting a rune.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	cells := 0
	for i, r := range s {
		w := lipgloss.Width(string(r))
		if cells+w > width {
			return s[:i]
		}
		cells += w
	}
	return s
}
