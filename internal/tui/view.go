package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	openStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	closedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080"))

	filteredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))
)

func (m ProgressModel) View() string {
	headerText := fmt.Sprintf("netrecon - %s [%s]", m.interfaceName, m.method)
	if m.width > 0 {
		headerText = truncateMiddle(headerText, m.width-4)
	}
	title := titleStyle.Render(headerText)

	var body strings.Builder
	body.WriteString(fmt.Sprintf("Probes: %d / %d\n", m.progress.Completed(), m.total))
	body.WriteString(openStyle.Render(fmt.Sprintf("Open: %d  ", m.progress.Open())))
	body.WriteString(closedStyle.Render(fmt.Sprintf("Closed: %d  ", m.progress.Closed())))
	body.WriteString(filteredStyle.Render(fmt.Sprintf("Filtered: %d", m.progress.Filtered())))

	panel := infoStyle.Render(body.String())

	footer := "press q to quit"
	if m.done {
		footer = "scan complete — press q to exit"
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, panel, footer)
}

func truncateMiddle(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width < 5 {
		return s[:width]
	}
	half := (width - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}
