package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DEDEDE"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#43BF6D"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
)

// field renders one aligned "label value" line
func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Width(14).Render(label), valueStyle.Render(value))
}
