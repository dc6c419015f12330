package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	categoryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusOpen   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusClosed = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	headerH := 4
	inputH := 3
	logH := max(a.height-headerH-inputH-statusBarH-4, 3)
	w := a.width - 4

	header := paneStyle.Width(w).Render(titleStyle.Render(" Text log ") + "\n" + a.renderStatus())
	logs := paneStyle.Width(w).Height(logH).Render(a.logTitle() + "\n" + a.renderLogs(w, logH))
	input := paneStyle.Width(w).Render(a.composer.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, logs, input, a.renderStatusBar())
}

func (a App) renderStatus() string {
	if !a.hasStatus {
		return dimStyle.Render("waiting for status")
	}
	s := a.status

	state := statusClosed.Render("closed")
	if s.FileOpen {
		state = statusOpen.Render("open")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "File:  %s %s\n", state, dimStyle.Render(s.Path))
	fmt.Fprintf(&b, "Index: %05d  written %d  failures %d  dropped %d  boot %s",
		s.Index, s.Written, s.WriteFailures, s.Dropped, dimStyle.Render(shortID(s.BootID)))
	return b.String()
}

func (a App) renderLogs(w, h int) string {
	if len(a.logLines) == 0 {
		return dimStyle.Render("no records yet")
	}

	start := 0
	if len(a.logLines) > h-1 {
		start = len(a.logLines) - h + 1
	}

	var b strings.Builder
	for i := start; i < len(a.logLines); i++ {
		line := strings.TrimSuffix(a.logLines[i].Line, "\n")
		b.WriteString(truncate(line, w) + "\n")
	}
	return b.String()
}

func (a App) logTitle() string {
	title := titleStyle.Render(" Records ")
	if a.logPaused {
		title += " " + dimStyle.Render("[PAUSED]")
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "tab:category enter:log ctrl+p:pause ctrl+l:clear esc:quit"

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
