// SPDX-License-Identifier: MIT

// Package tui renders the meters and the device picker as Bubble Tea programs.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8453C")).
			Bold(true)

	readoutStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 0)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4F9DDE"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D"))
)
