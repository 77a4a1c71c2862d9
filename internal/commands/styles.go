package commands

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Width(16)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0caf5"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	badgeStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#e0af68"))
)

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
