package cmd

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
)

// styles holds the lipgloss styles shared by command output.
type styles struct {
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Score   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Score:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// renderHeader prints a bold section header followed by a separator line.
func renderHeader(s styles, title string) string {
	return s.Header.Render(title) + "\n" + s.Muted.Render(strings.Repeat("─", len(title)))
}

// renderField prints one "label: value" line with aligned styling.
func renderField(s styles, label, value string) string {
	return fmt.Sprintf("  %s %s", s.Label.Render(label+":"), s.Value.Render(value))
}
