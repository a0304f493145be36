package tui

import "github.com/charmbracelet/lipgloss"

// styles contains all lipgloss styles used by the TUI.
var styles = struct {
	// Layout styles
	Divider lipgloss.Style

	// Header styles
	Title   lipgloss.Style
	Ship    lipgloss.Style
	Counter lipgloss.Style

	// Footer style
	Footer lipgloss.Style

	// Event styles
	Time      lipgloss.Style
	Game      lipgloss.Style
	Historic  lipgloss.Style
	Status    lipgloss.Style
	Projected lipgloss.Style
	External  lipgloss.Style
	Dialogue  lipgloss.Style
	Tool      lipgloss.Style

	// State pane
	StateName lipgloss.Style

	// Ship indicators
	Docked lipgloss.Style
	Combat lipgloss.Style
	Idle   lipgloss.Style

	// Focus indicators
	FocusedBorder   lipgloss.Style
	UnfocusedBorder lipgloss.Style
}{
	Divider: lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")),

	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")),

	Ship: lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")),

	Counter: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Footer: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Time: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Game: lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")),

	Historic: lipgloss.NewStyle().
		Foreground(lipgloss.Color("242")),

	Status: lipgloss.NewStyle().
		Foreground(lipgloss.Color("110")),

	Projected: lipgloss.NewStyle().
		Foreground(lipgloss.Color("114")),

	External: lipgloss.NewStyle().
		Foreground(lipgloss.Color("220")),

	Dialogue: lipgloss.NewStyle().
		Foreground(lipgloss.Color("177")),

	Tool: lipgloss.NewStyle().
		Foreground(lipgloss.Color("250")),

	StateName: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")),

	Docked: lipgloss.NewStyle().
		Foreground(lipgloss.Color("82")),

	Combat: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196")),

	Idle: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	FocusedBorder: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")), // Bright blue for focused

	UnfocusedBorder: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")),
}
