// Package ui holds the terminal styles shared by the CLI commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Online renders reachability as green.
	Online = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)

	// Offline renders unreachability as yellow, not red: offline is a
	// normal operating mode, not an error.
	Offline = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)

	// Err renders failures as red.
	Err = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	// Header renders section titles.
	Header = lipgloss.NewStyle().Bold(true).Underline(true)

	// Muted renders secondary detail.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Pending highlights records awaiting reconciliation.
	Pending = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// StatusWord returns a styled online/offline word.
func StatusWord(online bool) string {
	if online {
		return Online.Render("ONLINE")
	}
	return Offline.Render("OFFLINE")
}
