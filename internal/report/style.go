// internal/report/style.go
package report

import "github.com/charmbracelet/lipgloss"

var (
	Cyan   = lipgloss.Color("#00E5FF") // Primary highlight
	Yellow = lipgloss.Color("#FFB500") // Warnings
	Green  = lipgloss.Color("#2AFFAA") // Positive PnL / success
	Red    = lipgloss.Color("#FF5555") // Negative PnL / errors
	Muted  = lipgloss.Color("#6C7280")
	Text   = lipgloss.Color("#ECEFF4")
)

// Styles groups the terminal styles used by every report block.
type Styles struct {
	Box      lipgloss.Style
	Title    lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Positive lipgloss.Style
	Negative lipgloss.Style
	Warning  lipgloss.Style
}

// DefaultStyles returns the report palette.
func DefaultStyles() Styles {
	return Styles{
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		Label: lipgloss.NewStyle().
			Foreground(Muted),
		Value: lipgloss.NewStyle().
			Foreground(Text),
		Positive: lipgloss.NewStyle().
			Foreground(Green).
			Bold(true),
		Negative: lipgloss.NewStyle().
			Foreground(Red).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(Yellow),
	}
}
